package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"taskmarket-api/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// resolveTimeout bounds the best-effort address lookup inside task creation
// and location saves so a slow geocoder cannot stall the request.
const resolveTimeout = 3 * time.Second

const defaultRadiusKm = 10.0

// Deps carries the collaborators the handlers are wired with.
type Deps struct {
	Store     Store
	Lifecycle Lifecycle
	Ledger    Ledger
	Profiles  domain.ProfileLocationStore
	Resolver  *domain.Resolver
	Auth      Authenticator
	Deduper   Deduper
	Log       *log.Logger

	// LocateTimeout bounds device position fetches during reconcile.
	LocateTimeout time.Duration
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", healthz())

	e.POST("/api/tasks", createTask(d))
	e.GET("/api/tasks/nearby", nearbyTasks(d))
	e.GET("/api/tasks/:id", getTask(d))
	e.GET("/api/tasks/:id/actions", allowedActions(d))
	e.GET("/api/tasks/:id/applications", listApplications(d))
	e.POST("/api/tasks/:id/applications", applyToTask(d))
	e.POST("/api/tasks/:id/applications/:helperID/accept", acceptApplication(d))
	e.POST("/api/tasks/:id/applications/:helperID/reject", rejectApplication(d))
	e.POST("/api/tasks/:id/start", transition(d, domain.ActionStart))
	e.POST("/api/tasks/:id/complete", transition(d, domain.ActionComplete))
	e.POST("/api/tasks/:id/cancel", transition(d, domain.ActionCancel))

	e.GET("/api/location", getLocation(d))
	e.PUT("/api/location", saveLocation(d))
	e.POST("/api/location/reconcile", reconcileLocation(d))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// respondBusinessError maps engine failures onto response codes. Business
// messages are safe to surface verbatim to the actor who caused them.
func respondBusinessError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrApplicationNotFound):
		return c.String(http.StatusNotFound, err.Error())
	}
	var unauthorized domain.UnauthorizedActionError
	if errors.As(err, &unauthorized) {
		return c.String(http.StatusForbidden, unauthorized.Error())
	}
	if domain.IsBusinessError(err) {
		return c.String(http.StatusConflict, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, "internal error")
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

type createTaskRequest struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Tags             []string   `json:"tags"`
	Priority         string     `json:"priority"`
	BudgetAmount     string     `json:"budgetAmount"`
	BudgetCurrency   string     `json:"budgetCurrency"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	City             string     `json:"city"`
	PostalCode       string     `json:"postalCode"`
	Country          string     `json:"country"`
	Deadline         *time.Time `json:"deadline"`
	EstimatedMinutes int        `json:"estimatedMinutes"`
	Urgent           bool       `json:"urgent"`
	Featured         bool       `json:"featured"`
}

func createTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(req.BudgetAmount))
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid budget amount")
		}
		priority := domain.TaskPriority(req.Priority)
		if req.Priority == "" {
			priority = domain.PriorityMedium
		}
		now := time.Now().UTC()
		task := domain.Task{
			ID:               uuid.NewString(),
			Title:            strings.TrimSpace(req.Title),
			Description:      req.Description,
			Category:         domain.TaskCategory(req.Category),
			Tags:             req.Tags,
			Priority:         priority,
			Budget:           domain.Money{Amount: amount, Currency: strings.ToUpper(req.BudgetCurrency)},
			Status:           domain.TaskOpen,
			Coords:           domain.Coordinates{Lat: req.Lat, Lng: req.Lng},
			City:             req.City,
			PostalCode:       req.PostalCode,
			Country:          req.Country,
			Deadline:         req.Deadline,
			EstimatedMinutes: req.EstimatedMinutes,
			Urgent:           req.Urgent,
			Featured:         req.Featured,
			AuthorID:         userID,
			CreatedAt:        now,
		}
		if err := task.Validate(); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		// Address is a cosmetic cache; lookup failure never blocks creation.
		resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
		task.Address = d.Resolver.ResolveAddress(resolveCtx, task.Coords)
		cancel()

		if err := d.Store.InsertTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		if task.Deadline != nil {
			if err := d.Store.EnqueueExpiry(ctx, task.ID, *task.Deadline, now); err != nil {
				// The task exists either way; the sweeper will pick the
				// deadline up from a later re-enqueue or manual sweep.
				log.WithError(err).WithField("task", task.ID).Error("failed to schedule deadline check")
			}
		}
		return c.JSON(http.StatusCreated, task)
	}
}

type nearbyResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func nearbyTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newNearbyRequestMetrics(ctx, d.Log)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		lat, latErr := strconv.ParseFloat(c.QueryParam("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.QueryParam("lng"), 64)
		if latErr != nil || lngErr != nil {
			metrics.SetErrorStage("invalid_origin")
			err = c.String(http.StatusBadRequest, "invalid origin coordinates")
			return err
		}
		origin := domain.Coordinates{Lat: lat, Lng: lng}
		if verr := origin.Validate(); verr != nil {
			metrics.SetErrorStage("invalid_origin")
			err = c.String(http.StatusBadRequest, verr.Error())
			return err
		}
		radiusKm := defaultRadiusKm
		if raw := strings.TrimSpace(c.QueryParam("radius")); raw != "" {
			radiusKm, err = strconv.ParseFloat(raw, 64)
			if err != nil || radiusKm < 0 {
				metrics.SetErrorStage("invalid_radius")
				err = c.String(http.StatusBadRequest, "invalid radius")
				return err
			}
		}
		metrics.SetRadius(radiusKm)

		fetchStart := time.Now()
		open, fetchErr := d.Store.ListOpenTasks(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, "failed to list tasks")
			return err
		}
		metrics.SetTasksScanned(len(open))

		filterStart := time.Now()
		nearby := make([]domain.Task, 0, len(open))
		for t := range domain.NearbyOpenTasks(open, origin, radiusKm) {
			nearby = append(nearby, t)
		}
		metrics.ObserveFilter(time.Since(filterStart))
		metrics.SetTasksReturned(len(nearby))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, nearbyResponse{Tasks: nearby})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, err := d.Store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load task")
		}
		if t == nil {
			return c.String(http.StatusNotFound, domain.ErrTaskNotFound.Error())
		}
		return c.JSON(http.StatusOK, t)
	}
}

type actionsResponse struct {
	Actions []domain.Action `json:"actions"`
}

// allowedActions reports which lifecycle actions the calling user could
// perform on the task right now, so the presentation layer can decide what
// to offer without trial-and-error mutations.
func allowedActions(d Deps) echo.HandlerFunc {
	var matcher domain.Matcher
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, err := d.Store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load task")
		}
		if t == nil {
			return c.String(http.StatusNotFound, domain.ErrTaskNotFound.Error())
		}

		// Accept/reject are judged against the named helper's application
		// when one is given, otherwise against the caller's own.
		appHelper := c.QueryParam("helper")
		if appHelper == "" {
			appHelper = userID
		}
		var app *domain.Application
		if got, err := d.Ledger.Get(ctx, t.ID, appHelper); err == nil {
			app = &got
		} else if !errors.Is(err, domain.ErrApplicationNotFound) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load application")
		}

		allowed := make([]domain.Action, 0, len(domain.Actions))
		for _, action := range domain.Actions {
			if matcher.CanAct(t, app, userID, action) {
				allowed = append(allowed, action)
			}
		}
		return c.JSON(http.StatusOK, actionsResponse{Actions: allowed})
	}
}

type applicationsResponse struct {
	Applications []domain.Application `json:"applications"`
}

func listApplications(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, err := d.Store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load task")
		}
		if t == nil {
			return c.String(http.StatusNotFound, domain.ErrTaskNotFound.Error())
		}
		apps, err := d.Ledger.ListFor(ctx, t.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to list applications")
		}
		if userID != t.AuthorID {
			// Helpers only see their own bid.
			own := apps[:0]
			for _, a := range apps {
				if a.HelperID == userID {
					own = append(own, a)
				}
			}
			apps = own
		}
		return c.JSON(http.StatusOK, applicationsResponse{Applications: apps})
	}
}

type applyRequest struct {
	Message string `json:"message"`
}

func applyToTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		var req applyRequest
		if err := decodeBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		// Network-level retries of the same submission short-circuit to the
		// already-recorded application instead of a duplicate conflict.
		dedupeKey := "apply:" + taskID
		if d.Deduper != nil {
			added, err := d.Deduper.Add(ctx, userID, dedupeKey)
			if err == nil && !added {
				if app, err := d.Ledger.Get(ctx, taskID, userID); err == nil {
					return c.JSON(http.StatusOK, app)
				}
			}
		}

		app, err := d.Lifecycle.Propose(ctx, taskID, userID, req.Message)
		if err != nil {
			if d.Deduper != nil {
				_ = d.Deduper.Remove(ctx, userID, dedupeKey)
			}
			return respondBusinessError(c, err)
		}
		return c.JSON(http.StatusCreated, app)
	}
}

func acceptApplication(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, err := d.Lifecycle.Accept(ctx, c.Param("id"), c.Param("helperID"), userID)
		if err != nil {
			return respondBusinessError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func rejectApplication(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		app, err := d.Lifecycle.Reject(ctx, c.Param("id"), c.Param("helperID"), userID)
		if err != nil {
			return respondBusinessError(c, err)
		}
		return c.JSON(http.StatusOK, app)
	}
}

// transition serves the start/complete/cancel endpoints, which share their
// request/response shape and differ only in the lifecycle call.
func transition(d Deps, action domain.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		taskID := c.Param("id")
		var t domain.Task
		switch action {
		case domain.ActionStart:
			t, err = d.Lifecycle.Start(ctx, taskID, userID)
		case domain.ActionComplete:
			t, err = d.Lifecycle.Complete(ctx, taskID, userID)
		case domain.ActionCancel:
			t, err = d.Lifecycle.Cancel(ctx, taskID, userID)
		default:
			return c.String(http.StatusBadRequest, "unknown action")
		}
		if err != nil {
			return respondBusinessError(c, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func getLocation(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		svc := domain.NewLocations(d.Profiles, nil, d.Resolver)
		loc, err := svc.Saved(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load location")
		}
		if loc == nil {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, loc)
	}
}

type saveLocationRequest struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Address    string  `json:"address"`
	City       string  `json:"city"`
	PostalCode string  `json:"postalCode"`
	Country    string  `json:"country"`
}

func saveLocation(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req saveLocationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
		defer cancel()
		svc := domain.NewLocations(d.Profiles, nil, d.Resolver)
		loc, err := svc.Save(resolveCtx, userID, domain.Location{
			Coords:     domain.Coordinates{Lat: req.Lat, Lng: req.Lng},
			Address:    req.Address,
			City:       req.City,
			PostalCode: req.PostalCode,
			Country:    req.Country,
		})
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, loc)
	}
}

// reconcileRequest is the client-reported device geolocation outcome: either
// a coordinate pair or the typed reason the device could not produce one.
type reconcileRequest struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Error string   `json:"error"`
}

func reconcileLocation(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reconcileRequest
		if err := decodeBody(c, &req); err != nil && !errors.Is(err, io.EOF) {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		svc := domain.NewLocations(d.Profiles, reportedLocator(req), d.Resolver)
		if d.LocateTimeout > 0 {
			svc = svc.WithTimeout(d.LocateTimeout)
		}
		res, err := svc.Reconcile(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to reconcile location")
		}
		return c.JSON(http.StatusOK, res)
	}
}

// reportedLocator adapts the client-reported geolocation outcome to the
// engine's device collaborator. The browser runs the permission prompt and
// the fix; the request carries the result.
func reportedLocator(req reconcileRequest) domain.DeviceLocator {
	if req.Lat != nil && req.Lng != nil {
		return staticLocator{coords: domain.Coordinates{Lat: *req.Lat, Lng: *req.Lng}}
	}
	reason := domain.LocatePositionUnavailable
	switch domain.LocateReason(req.Error) {
	case domain.LocatePermissionDenied:
		reason = domain.LocatePermissionDenied
	case domain.LocateTimeout:
		reason = domain.LocateTimeout
	}
	return staticLocator{reason: reason}
}

type staticLocator struct {
	coords domain.Coordinates
	reason domain.LocateReason
}

func (l staticLocator) CurrentPosition(ctx context.Context, highAccuracy bool) (domain.Coordinates, error) {
	if l.reason != "" {
		return domain.Coordinates{}, &domain.LocateError{Reason: l.reason}
	}
	return l.coords, nil
}

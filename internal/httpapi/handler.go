package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"eventattendance/internal/attendance"
	"eventattendance/internal/feed"
	"eventattendance/internal/metrics"
	"eventattendance/internal/queue"
)

const internalError = "Internal server error"

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the attendance API.
type Handler struct {
	svc     *attendance.Service
	queue   queue.Queue // nil disables scan notifications
	feed    feed.Feed   // nil disables /api/recent-scans
	metrics *metrics.Metrics
	log     zerolog.Logger
	checks  map[string]HealthCheck
	loc     *time.Location
}

// Deps bundles the collaborators a Handler needs.
type Deps struct {
	Service  *attendance.Service
	Queue    queue.Queue
	Feed     feed.Feed
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Checks   map[string]HealthCheck
	Location *time.Location
}

func New(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		svc:     d.Service,
		queue:   d.Queue,
		feed:    d.Feed,
		metrics: d.Metrics,
		log:     d.Log,
		checks:  d.Checks,
		loc:     loc,
	}
}

// ---------- Health ----------

func (h *Handler) Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Hello": "world"})
}

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Events ----------

func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.svc.ListEvents(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list events failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to fetch events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

// ---------- Student info ----------

type studentInfoQuery struct {
	EventID string `form:"event_id" binding:"required"`
	HTNO    string `form:"htno" binding:"required"`
}

type studentInfoResponse struct {
	HTNO       string  `json:"htno"`
	Name       string  `json:"name"`
	Program    string  `json:"program"`
	Batch      string  `json:"batch"`
	Registered bool    `json:"registered"`
	RegType    *string `json:"reg_type"`
	CheckedIn  bool    `json:"checked_in"`
}

func (h *Handler) StudentInfo(c *gin.Context) {
	var q studentInfoQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required params: event_id and htno"})
		return
	}
	info, err := h.svc.StudentInfo(c.Request.Context(), q.EventID, q.HTNO)
	if err != nil {
		h.writeLookupError(c, err, gin.H{"event_id": q.EventID, "htno": q.HTNO})
		return
	}
	resp := studentInfoResponse{
		HTNO:       info.Student.HTNO,
		Name:       info.Student.Name,
		Program:    info.Student.Program,
		Batch:      info.Student.Batch,
		Registered: info.Registered,
		CheckedIn:  info.CheckedIn,
	}
	if info.Registered {
		rt := string(info.RegType)
		resp.RegType = &rt
	}
	c.JSON(http.StatusOK, resp)
}

// ---------- Check-in ----------

type deviceQuery struct {
	EventID string `form:"event_id" binding:"required"`
	RFIDHex string `form:"rfid_hex" binding:"required"`
}

type manualQuery struct {
	EventID string `form:"event_id" binding:"required"`
	HTNO    string `form:"htno" binding:"required"`
}

type checkInResponse struct {
	HTNO       string `json:"htno"`
	Name       string `json:"name"`
	Program    string `json:"program"`
	Batch      string `json:"batch"`
	Registered bool   `json:"registered"`
	RegType    string `json:"reg_type,omitempty"`
	Attendance string `json:"attendance"`
}

// MarkAttendanceDevice handles a badge scan.
func (h *Handler) MarkAttendanceDevice(c *gin.Context) {
	var q deviceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and rfid_hex are required"})
		return
	}
	out, err := h.svc.CheckInDevice(c.Request.Context(), q.EventID, q.RFIDHex)
	h.respondCheckIn(c, "device", out, err, gin.H{"event_id": q.EventID, "rfid_hex": q.RFIDHex})
}

// MarkAttendanceManual handles a hall ticket number typed at a kiosk.
func (h *Handler) MarkAttendanceManual(c *gin.Context) {
	var q manualQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and htno are required"})
		return
	}
	out, err := h.svc.CheckInManual(c.Request.Context(), q.EventID, q.HTNO)
	h.respondCheckIn(c, "manual", out, err, gin.H{"event_id": q.EventID, "htno": q.HTNO})
}

func (h *Handler) respondCheckIn(c *gin.Context, source string, out attendance.Outcome, err error, fields gin.H) {
	if err != nil {
		if h.metrics != nil {
			h.metrics.CheckInFailures.WithLabelValues(source, failureReason(err)).Inc()
		}
		h.writeLookupError(c, err, fields)
		return
	}
	if h.metrics != nil {
		h.metrics.CheckIns.WithLabelValues(source, string(out.Status)).Inc()
	}
	if out.Wrote() {
		h.publishScan(c.Request.Context(), source, out)
	}
	c.JSON(http.StatusOK, checkInResponse{
		HTNO:       out.Student.HTNO,
		Name:       out.Student.Name,
		Program:    out.Student.Program,
		Batch:      out.Student.Batch,
		Registered: out.Registered,
		RegType:    string(out.RegType),
		Attendance: string(out.Status),
	})
}

func (h *Handler) publishScan(ctx context.Context, source string, out attendance.Outcome) {
	if h.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	scan := queue.Scan{
		EventID:   out.EventID,
		HTNO:      out.Student.HTNO,
		Name:      out.Student.Name,
		RegID:     out.Record.RegistrationID,
		RegType:   string(out.RegType),
		Status:    string(out.Status),
		Source:    source,
		ScannedAt: out.Record.UpdatedAt,
	}
	if err := h.queue.Publish(ctx, scan); err != nil {
		h.log.Warn().Err(err).Str("event_id", scan.EventID).Str("htno", scan.HTNO).Msg("scan publish failed")
	}
}

// ---------- Stats ----------

type statsQuery struct {
	EventID string `form:"event_id" binding:"required"`
}

func (h *Handler) Stats(c *gin.Context) {
	var q statsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id is required"})
		return
	}
	stats, err := h.svc.Stats(c.Request.Context(), q.EventID)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", q.EventID).Msg("stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch registrations"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ---------- Spot registration ----------

type spotQuery struct {
	HTNO    string `form:"htno" binding:"required"`
	EventID string `form:"event_id" binding:"required"`
	Type    string `form:"type" binding:"required,regtype"`
}

func (h *Handler) SpotRegistration(c *gin.Context) {
	var q spotQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		msg := "Missing parameters"
		if q.HTNO != "" && q.EventID != "" && q.Type != "" {
			msg = "Invalid registration type"
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msg})
		return
	}
	regType, _ := attendance.ParseRegType(q.Type)

	reg, err := h.svc.SpotRegister(c.Request.Context(), q.HTNO, q.EventID, regType)
	var already *attendance.AlreadyRegisteredError
	switch {
	case err == nil:
		h.countRegistration("created")
		h.log.Info().Str("htno", reg.HTNO).Str("event_id", reg.EventID).Str("reg_type", string(reg.Type)).Msg("spot registration")
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"message":  "Spot registration successful",
			"htno":     reg.HTNO,
			"event_id": reg.EventID,
			"type":     string(reg.Type),
		})
	case errors.As(err, &already):
		h.countRegistration("duplicate")
		c.JSON(http.StatusOK, gin.H{
			"success":           false,
			"message":           "Already registered",
			"registration_type": string(already.Existing.Type),
		})
	case errors.Is(err, attendance.ErrUnknownStudent):
		h.countRegistration("unknown_student")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Student not found"})
	case errors.Is(err, attendance.ErrEventNotFound):
		h.countRegistration("unknown_event")
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found"})
	default:
		h.countRegistration("error")
		h.log.Error().Err(err).Str("htno", q.HTNO).Str("event_id", q.EventID).Msg("spot registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
	}
}

func (h *Handler) countRegistration(result string) {
	if h.metrics != nil {
		h.metrics.Registrations.WithLabelValues(result).Inc()
	}
}

// ---------- Recent scans ----------

type recentQuery struct {
	EventID string `form:"event_id" binding:"required"`
	Limit   string `form:"limit"`
}

type recentScan struct {
	HTNO      string `json:"htno"`
	Name      string `json:"name"`
	RegType   string `json:"reg_type"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	ScannedAt string `json:"scanned_at"`
}

func (h *Handler) RecentScans(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan feed not configured"})
		return
	}
	var q recentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id is required"})
		return
	}
	limit := 20
	if q.Limit != "" {
		if parsed, err := strconv.Atoi(q.Limit); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	scans, err := h.feed.Recent(c.Request.Context(), q.EventID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", q.EventID).Msg("read feed failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalError})
		return
	}
	out := make([]recentScan, 0, len(scans))
	for _, s := range scans {
		out = append(out, recentScan{
			HTNO:      s.HTNO,
			Name:      s.Name,
			RegType:   s.RegType,
			Status:    s.Status,
			Source:    s.Source,
			ScannedAt: s.ScannedAt.In(h.loc).Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"event_id": q.EventID, "scans": out})
}

// ---------- Errors ----------

// writeLookupError maps core errors onto HTTP responses. Integrity faults surface as
// ordinary not-found but are logged at error level.
func (h *Handler) writeLookupError(c *gin.Context, err error, fields gin.H) {
	var status int
	var msg string
	switch {
	case errors.Is(err, attendance.ErrMissingParam):
		status, msg = http.StatusBadRequest, "missing required parameter"
	case errors.Is(err, attendance.ErrUnknownDevice):
		status, msg = http.StatusNotFound, "RFID not mapped"
	case errors.Is(err, attendance.ErrUnknownStudent):
		status, msg = http.StatusNotFound, "Student not found"
	case errors.Is(err, attendance.ErrEventNotFound):
		status, msg = http.StatusNotFound, "Event not found"
	default:
		status, msg = http.StatusInternalServerError, internalError
	}

	evt := h.log.Debug()
	switch {
	case attendance.IsIntegrityFault(err):
		evt = h.log.Error().Bool("data_integrity", true)
	case status == http.StatusInternalServerError:
		evt = h.log.Error()
	}
	evt.Err(err).Fields(map[string]any(fields)).Int("status", status).Msg("request rejected")

	c.JSON(status, gin.H{"error": msg})
}

func failureReason(err error) string {
	switch {
	case attendance.IsIntegrityFault(err):
		return "data_integrity"
	case errors.Is(err, attendance.ErrMissingParam):
		return "missing_param"
	case errors.Is(err, attendance.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, attendance.ErrUnknownStudent):
		return "unknown_student"
	case errors.Is(err, attendance.ErrEventNotFound):
		return "unknown_event"
	}
	return "internal"
}

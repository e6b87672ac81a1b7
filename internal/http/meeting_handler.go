package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/meetgrid/internal/application"
)

const (
	adminTokenHeader  = "X-Admin-Token"
	deviceTokenHeader = "X-Device-Token"
	maxBodyBytes      = 64 << 10
)

type meetingService interface {
	CreateMeeting(ctx context.Context, input application.CreateMeetingInput) (application.CreateMeetingResult, error)
	GetMeeting(ctx context.Context, meetingID string) (application.PublicMeeting, error)
	BestSlots(ctx context.Context, meetingID string) (application.BestSlots, error)
	Heatmap(ctx context.Context, meetingID string) ([]application.HeatmapCell, error)

	ClaimIdentity(ctx context.Context, meetingID, participantID string) (application.ClaimResult, error)
	ForceClaimIdentity(ctx context.Context, meetingID, participantID string) (application.ClaimResult, error)
	ValidateSession(ctx context.Context, meetingID, participantID, deviceToken string) (bool, error)
	ResetSession(ctx context.Context, meetingID, participantID, adminToken string) error
	UpdateAvailability(ctx context.Context, meetingID, participantID, deviceToken string, slots []string) ([]string, error)

	RequestGuestAccess(ctx context.Context, meetingID, name, origin string) (string, error)
	ApproveGuest(ctx context.Context, meetingID, requestID, adminToken string) (application.PublicParticipant, error)
	RejectGuest(ctx context.Context, meetingID, requestID, adminToken string) error

	ValidateAdmin(ctx context.Context, meetingID, adminToken string) error
	ToggleFreeze(ctx context.Context, meetingID, adminToken string, frozen bool) (string, error)
	DeleteParticipant(ctx context.Context, meetingID, participantID, adminToken string) error
	FinalizeMeeting(ctx context.Context, meetingID, slotID, adminToken string) error
}

// MeetingHandler serves the meeting routes.
type MeetingHandler struct {
	service   meetingService
	responder responder
	logger    *slog.Logger
}

func NewMeetingHandler(service meetingService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (h *MeetingHandler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		err = errors.New("request body is empty")
	}
	h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode request", "error", err)
	h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
	return false
}

// fail logs the service error and writes its mapped response.
func (h *MeetingHandler) fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	kind := application.ErrorKind(err)
	if kind == "unavailable" || kind == "creation_failed" || kind == "unexpected" {
		logger.ErrorContext(r.Context(), msg, "error", err, "error_kind", kind)
	} else {
		logger.WarnContext(r.Context(), msg, "error", err, "error_kind", kind)
	}
	h.responder.handleServiceError(r.Context(), w, err)
}

func (h *MeetingHandler) adminToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusForbidden, "UNAUTHORIZED", errMissingToken)
		return "", false
	}
	return token, true
}

func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMeetingRequest
	if !h.decode(w, r, "Create", &req) {
		return
	}
	logger := h.log(r.Context(), "Create")

	result, err := h.service.CreateMeeting(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, logger, "meeting creation failed", err)
		return
	}

	logger.InfoContext(r.Context(), "meeting created", "meeting_id", result.MeetingID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createMeetingResponse{
		MeetingID:  result.MeetingID,
		AdminToken: result.AdminToken,
		ShareURL:   result.ShareURL,
	})
}

func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]
	meeting, err := h.service.GetMeeting(r.Context(), meetingID)
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "Get", "meeting_id", meetingID), "meeting lookup failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, meeting)
}

func (h *MeetingHandler) BestSlots(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]
	best, err := h.service.BestSlots(r.Context(), meetingID)
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "BestSlots", "meeting_id", meetingID), "best slot ranking failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, best)
}

func (h *MeetingHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["id"]
	cells, err := h.service.Heatmap(r.Context(), meetingID)
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "Heatmap", "meeting_id", meetingID), "heatmap failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, heatmapResponse{Cells: cells})
}

func (h *MeetingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "Claim", h.service.ClaimIdentity)
}

func (h *MeetingHandler) ForceClaim(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "ForceClaim", h.service.ForceClaimIdentity)
}

func (h *MeetingHandler) claim(w http.ResponseWriter, r *http.Request, operation string, claim func(context.Context, string, string) (application.ClaimResult, error)) {
	vars := mux.Vars(r)
	logger := h.log(r.Context(), operation, "meeting_id", vars["id"], "participant_id", vars["pid"])

	result, err := claim(r.Context(), vars["id"], vars["pid"])
	if err != nil {
		h.fail(w, r, logger, "identity claim failed", err)
		return
	}

	logger.InfoContext(r.Context(), "identity claimed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, claimResponse{
		DeviceToken: result.DeviceToken,
		Participant: result.Participant,
	})
}

func (h *MeetingHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, "ValidateSession", &req) {
		return
	}
	vars := mux.Vars(r)

	valid, err := h.service.ValidateSession(r.Context(), vars["id"], vars["pid"], req.DeviceToken)
	if err != nil {
		h.fail(w, r, h.log(r.Context(), "ValidateSession", "meeting_id", vars["id"]), "session validation failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Valid: valid})
}

func (h *MeetingHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	logger := h.log(r.Context(), "ResetSession", "meeting_id", vars["id"], "participant_id", vars["pid"])

	if err := h.service.ResetSession(r.Context(), vars["id"], vars["pid"], token); err != nil {
		h.fail(w, r, logger, "session reset failed", err)
		return
	}
	logger.InfoContext(r.Context(), "session reset")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MeetingHandler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var req slotsRequest
	if !h.decode(w, r, "UpdateAvailability", &req) {
		return
	}
	vars := mux.Vars(r)
	logger := h.log(r.Context(), "UpdateAvailability", "meeting_id", vars["id"], "participant_id", vars["pid"])

	stored, err := h.service.UpdateAvailability(r.Context(), vars["id"], vars["pid"],
		strings.TrimSpace(r.Header.Get(deviceTokenHeader)), req.Slots)
	if err != nil {
		h.fail(w, r, logger, "availability update failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotsResponse{Slots: stored})
}

func (h *MeetingHandler) RequestGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if !h.decode(w, r, "RequestGuest", &req) {
		return
	}
	meetingID := mux.Vars(r)["id"]
	logger := h.log(r.Context(), "RequestGuest", "meeting_id", meetingID)

	requestID, err := h.service.RequestGuestAccess(r.Context(), meetingID, req.Name, ClientOriginFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, logger, "guest request failed", err)
		return
	}
	logger.InfoContext(r.Context(), "guest access requested", "request_id", requestID)
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, guestResponse{RequestID: requestID})
}

func (h *MeetingHandler) ApproveGuest(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	logger := h.log(r.Context(), "ApproveGuest", "meeting_id", vars["id"], "request_id", vars["rid"])

	participant, err := h.service.ApproveGuest(r.Context(), vars["id"], vars["rid"], token)
	if err != nil {
		h.fail(w, r, logger, "guest approval failed", err)
		return
	}
	logger.InfoContext(r.Context(), "guest approved", "participant_id", participant.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, participantResponse{Participant: participant})
}

func (h *MeetingHandler) RejectGuest(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	logger := h.log(r.Context(), "RejectGuest", "meeting_id", vars["id"], "request_id", vars["rid"])

	if err := h.service.RejectGuest(r.Context(), vars["id"], vars["rid"], token); err != nil {
		h.fail(w, r, logger, "guest rejection failed", err)
		return
	}
	logger.InfoContext(r.Context(), "guest rejected")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MeetingHandler) ValidateAdmin(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	meetingID := mux.Vars(r)["id"]
	if err := h.service.ValidateAdmin(r.Context(), meetingID, token); err != nil {
		h.fail(w, r, h.log(r.Context(), "ValidateAdmin", "meeting_id", meetingID), "admin validation failed", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MeetingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, "SetStatus", &req) {
		return
	}
	meetingID := mux.Vars(r)["id"]
	logger := h.log(r.Context(), "SetStatus", "meeting_id", meetingID)

	status, err := h.service.ToggleFreeze(r.Context(), meetingID, token, req.Frozen)
	if err != nil {
		h.fail(w, r, logger, "status change failed", err)
		return
	}
	logger.InfoContext(r.Context(), "meeting status changed", "status", status)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, statusResponse{Status: status})
}

func (h *MeetingHandler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	logger := h.log(r.Context(), "DeleteParticipant", "meeting_id", vars["id"], "participant_id", vars["pid"])

	if err := h.service.DeleteParticipant(r.Context(), vars["id"], vars["pid"], token); err != nil {
		h.fail(w, r, logger, "participant deletion failed", err)
		return
	}
	logger.InfoContext(r.Context(), "participant deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MeetingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	token, ok := h.adminToken(w, r)
	if !ok {
		return
	}
	var req finalizeRequest
	if !h.decode(w, r, "Finalize", &req) {
		return
	}
	meetingID := mux.Vars(r)["id"]
	logger := h.log(r.Context(), "Finalize", "meeting_id", meetingID, "slot_id", req.SlotID)

	if err := h.service.FinalizeMeeting(r.Context(), meetingID, req.SlotID, token); err != nil {
		h.fail(w, r, logger, "finalization failed", err)
		return
	}
	logger.InfoContext(r.Context(), "meeting finalized")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, finalizeResponse{Status: "finalized", FinalizedSlotID: req.SlotID})
}

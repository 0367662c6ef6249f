package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

// CreateRoomRequest represents a create room request
type CreateRoomRequest struct {
	Title          string   `json:"title"`
	ParticipantIDs []uint32 `json:"participantIds"`
}

// CreateRoomHandler creates a new room and enrolls the owner plus the given
// participants.
func (r *Router) CreateRoomHandler(w http.ResponseWriter, req *http.Request) {
	userID, err := getUserIDFromContext(req.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var createReq CreateRoomRequest
	if err := json.NewDecoder(req.Body).Decode(&createReq); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if createReq.Title == "" {
		utils.RespondError(w, http.StatusBadRequest, "Room title is required")
		return
	}

	now := time.Now().UTC()
	room := models.ChatRoom{
		Title:       createReq.Title,
		OwnerID:     userID,
		TimeCreated: now,
		LastUpdated: now,
	}
	if _, err := r.db.InsertChatRoom(req.Context(), &room); err != nil {
		r.logger.Error(req.Context(), "failed to create room: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	members := append([]uint32{userID}, createReq.ParticipantIDs...)
	if err := r.db.InsertChatRoomParticipants(req.Context(), room.ID, members); err != nil {
		r.logger.Error(req.Context(), "failed to enroll participants in room %d: %v", room.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to enroll participants")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, room)
}

// GetRoomsHandler retrieves all rooms the user is enrolled in.
func (r *Router) GetRoomsHandler(w http.ResponseWriter, req *http.Request) {
	userID, err := getUserIDFromContext(req.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rooms, err := r.db.FetchAllUserChatRooms(req.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}
	if rooms == nil {
		rooms = make([]models.ChatRoom, 0)
	}
	utils.RespondJSON(w, http.StatusOK, rooms)
}

// GetRoomHandler retrieves a single room by ID, members only.
func (r *Router) GetRoomHandler(w http.ResponseWriter, req *http.Request) {
	userID, err := getUserIDFromContext(req.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	roomID, err := parseRoomID(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid room ID")
		return
	}

	member, err := r.isRoomMember(req, roomID, userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to check membership")
		return
	}
	if !member {
		utils.RespondError(w, http.StatusForbidden, "Not a member of this room")
		return
	}

	room, err := r.db.GetChatRoom(req.Context(), roomID)
	if errors.Is(err, db.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch room")
		return
	}
	utils.RespondJSON(w, http.StatusOK, room)
}

// UpdateRoomRequest represents a room update request
type UpdateRoomRequest struct {
	Title string `json:"title"`
}

// UpdateRoomHandler retitles a room. Owner only.
func (r *Router) UpdateRoomHandler(w http.ResponseWriter, req *http.Request) {
	userID, err := getUserIDFromContext(req.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	roomID, err := parseRoomID(req)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid room ID")
		return
	}

	var updateReq UpdateRoomRequest
	if err := json.NewDecoder(req.Body).Decode(&updateReq); err != nil || updateReq.Title == "" {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	room, err := r.db.GetChatRoom(req.Context(), roomID)
	if errors.Is(err, db.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Room not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch room")
		return
	}
	if room.OwnerID != userID {
		utils.RespondError(w, http.StatusForbidden, "Only the owner can update a room")
		return
	}

	room.Title = updateReq.Title
	room.LastUpdated = time.Now().UTC()
	if err := r.db.UpdateChatRoom(req.Context(), room); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update room")
		return
	}
	utils.RespondJSON(w, http.StatusOK, room)
}

func parseRoomID(req *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(req.PathValue("id"), 10, 32)
	return uint32(id), err
}

func (r *Router) isRoomMember(req *http.Request, roomID, userID uint32) (bool, error) {
	participants, err := r.db.GetChatRoomParticipants(req.Context(), roomID)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

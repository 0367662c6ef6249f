package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

// GetMembersHandler lists a room's durable participants. Members only.
func (r *Router) GetMembersHandler(w http.ResponseWriter, req *http.Request) {
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

	participants, err := r.db.GetChatRoomParticipants(req.Context(), roomID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch members")
		return
	}

	member := false
	for _, p := range participants {
		if p.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		utils.RespondError(w, http.StatusForbidden, "Not a member of this room")
		return
	}

	if participants == nil {
		participants = make([]models.Participant, 0)
	}
	utils.RespondJSON(w, http.StatusOK, participants)
}

// AddMembersRequest represents an add members request
type AddMembersRequest struct {
	UserIDs []uint32 `json:"userIds"`
}

// AddMembersHandler enrolls users into a room. Owner only.
func (r *Router) AddMembersHandler(w http.ResponseWriter, req *http.Request) {
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

	var addReq AddMembersRequest
	if err := json.NewDecoder(req.Body).Decode(&addReq); err != nil || len(addReq.UserIDs) == 0 {
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
		utils.RespondError(w, http.StatusForbidden, "Only the owner can add members")
		return
	}

	if err := r.db.InsertChatRoomParticipants(req.Context(), roomID, addReq.UserIDs); err != nil {
		r.logger.Error(req.Context(), "failed to add members to room %d: %v", roomID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to add members")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Members added successfully"})
}

// RemoveMemberHandler removes a user from a room. The owner can remove
// anyone; a member can remove themselves.
func (r *Router) RemoveMemberHandler(w http.ResponseWriter, req *http.Request) {
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

	target, err := strconv.ParseUint(req.PathValue("userID"), 10, 32)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	targetID := uint32(target)

	if targetID != userID {
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
			utils.RespondError(w, http.StatusForbidden, "Only the owner can remove other members")
			return
		}
	}

	if err := r.db.DeleteChatRoomParticipant(req.Context(), roomID, targetID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to remove member")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Member removed successfully"})
}

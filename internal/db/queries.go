package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avelasqz/multichat-back/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("db: not found")

// Chat room queries

func (db *Database) InsertChatRoom(ctx context.Context, room *models.ChatRoom) (uint32, error) {
	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO chat_room (title, owner_id, time_created, last_updated)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		room.Title, int64(room.OwnerID), room.TimeCreated, room.LastUpdated,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chat room: %w", err)
	}
	room.ID = uint32(id)
	return room.ID, nil
}

func (db *Database) GetChatRoom(ctx context.Context, roomID uint32) (*models.ChatRoom, error) {
	var room models.ChatRoom
	var id, ownerID int64
	err := db.QueryRow(ctx,
		`SELECT id, title, owner_id, time_created, last_updated FROM chat_room WHERE id = $1`,
		int64(roomID),
	).Scan(&id, &room.Title, &ownerID, &room.TimeCreated, &room.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	room.ID = uint32(id)
	room.OwnerID = uint32(ownerID)
	return &room, nil
}

func (db *Database) UpdateChatRoom(ctx context.Context, room *models.ChatRoom) error {
	_, err := db.Exec(ctx,
		`UPDATE chat_room SET title = $1, owner_id = $2, last_updated = $3 WHERE id = $4`,
		room.Title, int64(room.OwnerID), room.LastUpdated, int64(room.ID),
	)
	return err
}

// FetchAllUserChatRooms returns every room the user is enrolled in.
func (db *Database) FetchAllUserChatRooms(ctx context.Context, userID uint32) ([]models.ChatRoom, error) {
	rows, err := db.Query(ctx,
		`SELECT r.id, r.title, r.owner_id, r.time_created, r.last_updated
		 FROM chat_room r
		 INNER JOIN chat_users cu ON r.id = cu.chat_room_id
		 WHERE cu.user_id = $1
		 ORDER BY r.last_updated DESC`,
		int64(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.ChatRoom
	for rows.Next() {
		var room models.ChatRoom
		var id, ownerID int64
		if err := rows.Scan(&id, &room.Title, &ownerID, &room.TimeCreated, &room.LastUpdated); err != nil {
			return nil, err
		}
		room.ID = uint32(id)
		room.OwnerID = uint32(ownerID)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// Participant queries

// InsertChatRoomParticipants enrolls a batch of users with the current
// timestamp, as a single statement rather than N round-trips.
func (db *Database) InsertChatRoomParticipants(ctx context.Context, roomID uint32, userIDs []uint32) error {
	if len(userIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(userIDs))
	for i, u := range userIDs {
		ids[i] = int64(u)
	}
	_, err := db.Exec(ctx,
		`INSERT INTO chat_users (chat_room_id, user_id, time_joined)
		 SELECT $1, unnest($2::bigint[]), $3
		 ON CONFLICT (chat_room_id, user_id) DO NOTHING`,
		int64(roomID), ids, time.Now().UTC(),
	)
	return err
}

func (db *Database) GetChatRoomParticipants(ctx context.Context, roomID uint32) ([]models.Participant, error) {
	rows, err := db.Query(ctx,
		`SELECT chat_room_id, user_id, time_joined FROM chat_users WHERE chat_room_id = $1 ORDER BY time_joined`,
		int64(roomID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var roomID, userID int64
		if err := rows.Scan(&roomID, &userID, &p.TimeJoined); err != nil {
			return nil, err
		}
		p.ChatRoomID = uint32(roomID)
		p.UserID = uint32(userID)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (db *Database) DeleteChatRoomParticipant(ctx context.Context, roomID, userID uint32) error {
	_, err := db.Exec(ctx,
		`DELETE FROM chat_users WHERE chat_room_id = $1 AND user_id = $2`,
		int64(roomID), int64(userID),
	)
	return err
}

// Message queries. Content and the acknowledgement lists are stored as JSON
// text blobs in single columns.

func (db *Database) GetMessage(ctx context.Context, messageID uint32) (*models.ChatMessage, error) {
	var id, fromID, toID int64
	var content, delivered, seen string
	var msg models.ChatMessage
	err := db.QueryRow(ctx,
		`SELECT id, from_id, to_id, message, time_sent, time_delivered, time_seen
		 FROM message WHERE id = $1`,
		int64(messageID),
	).Scan(&id, &fromID, &toID, &content, &msg.TimeSent, &delivered, &seen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	msg.ID = uint32(id)
	msg.FromID = uint32(fromID)
	msg.ToID = uint32(toID)
	if err := decodeMessageBlobs(&msg, content, delivered, seen); err != nil {
		return nil, err
	}
	return &msg, nil
}

// InsertMessage persists a new message and returns the id assigned by the
// store.
func (db *Database) InsertMessage(ctx context.Context, msg *models.ChatMessage) (uint32, error) {
	content, delivered, seen, err := encodeMessageBlobs(msg)
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.QueryRow(ctx,
		`INSERT INTO message (from_id, to_id, message, time_sent, time_delivered, time_seen)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		int64(msg.FromID), int64(msg.ToID), content, msg.TimeSent, delivered, seen,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	msg.ID = uint32(id)
	return msg.ID, nil
}

// UpdateMessage writes back only the acknowledgement lists; everything else
// on a message is immutable after insert.
func (db *Database) UpdateMessage(ctx context.Context, msg *models.ChatMessage) error {
	delivered, err := json.Marshal(msg.TimeDelivered)
	if err != nil {
		return fmt.Errorf("failed to encode time_delivered: %w", err)
	}
	seen, err := json.Marshal(msg.TimeSeen)
	if err != nil {
		return fmt.Errorf("failed to encode time_seen: %w", err)
	}
	_, err = db.Exec(ctx,
		`UPDATE message SET time_delivered = $1, time_seen = $2 WHERE id = $3`,
		string(delivered), string(seen), int64(msg.ID),
	)
	return err
}

func (db *Database) FetchMessagesWithIds(ctx context.Context, messageIDs []uint32) ([]models.ChatMessage, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(messageIDs))
	for i, m := range messageIDs {
		ids[i] = int64(m)
	}
	rows, err := db.Query(ctx,
		`SELECT id, from_id, to_id, message, time_sent, time_delivered, time_seen
		 FROM message WHERE id = ANY($1::bigint[])`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var id, fromID, toID int64
		var content, delivered, seen string
		var msg models.ChatMessage
		if err := rows.Scan(&id, &fromID, &toID, &content, &msg.TimeSent, &delivered, &seen); err != nil {
			return nil, err
		}
		msg.ID = uint32(id)
		msg.FromID = uint32(fromID)
		msg.ToID = uint32(toID)
		if err := decodeMessageBlobs(&msg, content, delivered, seen); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func encodeMessageBlobs(msg *models.ChatMessage) (content, delivered, seen string, err error) {
	c, err := json.Marshal(msg.Message)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode message content: %w", err)
	}
	d, err := json.Marshal(msg.TimeDelivered)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode time_delivered: %w", err)
	}
	s, err := json.Marshal(msg.TimeSeen)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode time_seen: %w", err)
	}
	return string(c), string(d), string(s), nil
}

func decodeMessageBlobs(msg *models.ChatMessage, content, delivered, seen string) error {
	if err := json.Unmarshal([]byte(content), &msg.Message); err != nil {
		return fmt.Errorf("failed to decode message content: %w", err)
	}
	if err := json.Unmarshal([]byte(delivered), &msg.TimeDelivered); err != nil {
		return fmt.Errorf("failed to decode time_delivered: %w", err)
	}
	if err := json.Unmarshal([]byte(seen), &msg.TimeSeen); err != nil {
		return fmt.Errorf("failed to decode time_seen: %w", err)
	}
	return nil
}

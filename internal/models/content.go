package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyContent is returned when a content value carries no variant.
var ErrEmptyContent = errors.New("chat message content is empty")

// ChatMessageContent is a tagged variant over text and inline media. Exactly
// one field is set. On the wire it serializes as a single-key object tagged
// by the variant name: {"Text": "hi"} or {"Image": [137, 80, ...]}.
type ChatMessageContent struct {
	Text  *string
	Image []byte
	Video []byte
	Audio []byte
}

// TextContent builds a Text variant.
func TextContent(s string) ChatMessageContent {
	return ChatMessageContent{Text: &s}
}

// ImageContent builds an Image variant.
func ImageContent(b []byte) ChatMessageContent {
	return ChatMessageContent{Image: b}
}

// VideoContent builds a Video variant.
func VideoContent(b []byte) ChatMessageContent {
	return ChatMessageContent{Video: b}
}

// AudioContent builds an Audio variant.
func AudioContent(b []byte) ChatMessageContent {
	return ChatMessageContent{Audio: b}
}

// byteSeq serializes as a JSON array of integers rather than the base64
// string encoding/json would use for []byte. Clients exchange media bytes as
// plain arrays.
type byteSeq []byte

func (b byteSeq) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *byteSeq) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte sequence value out of range: %d", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type contentWire struct {
	Text  *string `json:"Text,omitempty"`
	Image byteSeq `json:"Image,omitempty"`
	Video byteSeq `json:"Video,omitempty"`
	Audio byteSeq `json:"Audio,omitempty"`
}

func (c ChatMessageContent) MarshalJSON() ([]byte, error) {
	if c.Text == nil && c.Image == nil && c.Video == nil && c.Audio == nil {
		return nil, ErrEmptyContent
	}
	return json.Marshal(contentWire{
		Text:  c.Text,
		Image: byteSeq(c.Image),
		Video: byteSeq(c.Video),
		Audio: byteSeq(c.Audio),
	})
}

func (c *ChatMessageContent) UnmarshalJSON(data []byte) error {
	var w contentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	set := 0
	if w.Text != nil {
		set++
	}
	if w.Image != nil {
		set++
	}
	if w.Video != nil {
		set++
	}
	if w.Audio != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("chat message content must carry exactly one variant, got %d", set)
	}
	c.Text = w.Text
	c.Image = w.Image
	c.Video = w.Video
	c.Audio = w.Audio
	return nil
}

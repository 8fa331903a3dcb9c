package query

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/stepfunnel/analytics-platform/pkg/errors"
)

func TestCursorRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 8, 14, 9, 30, 0, 123456789, time.UTC)
	id := "4be0643f-1d98-4f84-9bbd-5e0d2e2468f1"

	token := encodeCursor(createdAt, id)
	gotTime, gotID, err := decodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !gotTime.Equal(createdAt) {
		t.Errorf("created_at = %v, want %v", gotTime, createdAt)
	}
	if gotID != id {
		t.Errorf("id = %q, want %q", gotID, id)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	for _, cursor := range []string{
		"not base64 !!!",
		"aGVsbG8=",         // no separator
		"MTIzfA==",         // "123|" empty id
		"YWJjfHNlc3Npb24=", // "abc|session" non-numeric time
	} {
		_, _, err := decodeCursor(cursor)
		if !errors.Is(err, apperrors.ErrInvalidCursor) {
			t.Errorf("decodeCursor(%q) = %v, want ErrInvalidCursor", cursor, err)
		}
	}
}

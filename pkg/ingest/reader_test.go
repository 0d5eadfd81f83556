package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHeader = "event_id,occurred_at,user_id,event_type,properties_json\n"

func TestReaderParsesValidRows(t *testing.T) {
	input := sampleHeader +
		`11111111-2222-3333-4444-555555555555,2026-08-21T06:52:34+03:00,7,page_view,"{""path"":""/home""}"` + "\n" +
		`66666666-7777-8888-9999-000000000000,2026-08-21T07:00:00Z,8,click,` + "\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", first.EventID.String())
	assert.Equal(t, int64(7), first.UserID)
	assert.Equal(t, "page_view", first.EventType)
	assert.Equal(t, map[string]interface{}{"path": "/home"}, first.Properties)
	assert.Equal(t, 2026, first.OccurredAt.Year())

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "click", second.EventType)
	assert.Empty(t, second.Properties)
	assert.NotNil(t, second.Properties)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderWrapsNonObjectProperties(t *testing.T) {
	input := sampleHeader +
		`11111111-2222-3333-4444-555555555555,2026-08-21T07:00:00Z,7,signup,"[1,2]"` + "\n"

	r, err := NewReader(strings.NewReader(input))
	require.NoError(t, err)

	event, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"value": []interface{}{float64(1), float64(2)}}, event.Properties)
}

func TestReaderSkipsInvalidRows(t *testing.T) {
	cases := []struct {
		name string
		row  string
	}{
		{"empty event id", `,2026-08-21T07:00:00Z,7,click,{}`},
		{"bad event id", `not-a-uuid,2026-08-21T07:00:00Z,7,click,{}`},
		{"bad timestamp", `11111111-2222-3333-4444-555555555555,yesterday,7,click,{}`},
		{"bad user id", `11111111-2222-3333-4444-555555555555,2026-08-21T07:00:00Z,seven,click,{}`},
		{"empty event type", `11111111-2222-3333-4444-555555555555,2026-08-21T07:00:00Z,7,,{}`},
		{"bad properties", `11111111-2222-3333-4444-555555555555,2026-08-21T07:00:00Z,7,click,not-json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(sampleHeader + tc.row + "\n"))
			require.NoError(t, err)

			_, err = r.Next()
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, 2, rowErr.Line)
		})
	}
}

func TestReaderHeaderValidation(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		_, err := NewReader(strings.NewReader(""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("missing columns", func(t *testing.T) {
		_, err := NewReader(strings.NewReader("event_id,user_id\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "occurred_at")
		assert.Contains(t, err.Error(), "properties_json")
	})

	t.Run("reordered columns with extras", func(t *testing.T) {
		input := "source,user_id,event_id,event_type,occurred_at,properties_json\n" +
			`backfill,7,11111111-2222-3333-4444-555555555555,click,2026-08-21T07:00:00Z,{}` + "\n"
		r, err := NewReader(strings.NewReader(input))
		require.NoError(t, err)

		event, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "click", event.EventType)
		assert.Equal(t, int64(7), event.UserID)
	})

	t.Run("byte order mark", func(t *testing.T) {
		r, err := NewReader(strings.NewReader("\ufeff" + sampleHeader))
		require.NoError(t, err)
		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	})
}

func TestReaderToleratesShortRecords(t *testing.T) {
	// A truncated row fails field validation instead of panicking.
	r, err := NewReader(strings.NewReader(sampleHeader + "11111111-2222-3333-4444-555555555555,2026-08-21T07:00:00Z\n"))
	require.NoError(t, err)

	_, err = r.Next()
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
}

package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/errmodel"
	"pieces/internal/httpclient"
	"pieces/internal/logging"
	"pieces/internal/piece"
	"pieces/internal/store"
)

// fakeAirtable serves one table in pages of pageSize records.
type fakeAirtable struct {
	mu       sync.Mutex
	records  []Record
	pageSize int
	status   int
	calls    int
	auth     string

	// stuckOffset, when set, is returned as the offset of every page.
	stuckOffset string
}

func (f *fakeAirtable) set(records ...Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeAirtable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.auth = r.Header.Get("Authorization")

	if f.status != 0 {
		w.WriteHeader(f.status)
		w.Write([]byte(`{"error":{"type":"NOT_FOUND"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v0/meta/bases":
		w.Write([]byte(`{"bases":[{"id":"appX","name":"CRM","permissionLevel":"create"}]}`))
		return
	case "/v0/meta/bases/appX/tables":
		w.Write([]byte(`{"tables":[{"id":"tblY","name":"Contacts","fields":[]}]}`))
		return
	case "/v0/appX/tblY":
	default:
		http.NotFound(w, r)
		return
	}

	size := f.pageSize
	if size == 0 {
		size = 100
	}
	start := 0
	if off := r.URL.Query().Get("offset"); off != "" {
		json.Unmarshal([]byte(off), &start)
	}
	end := min(start+size, len(f.records))
	page := map[string]any{"records": f.records[start:end]}
	if end < len(f.records) {
		b, _ := json.Marshal(end)
		page["offset"] = string(b)
	}
	if f.stuckOffset != "" {
		page["offset"] = f.stuckOffset
	}
	json.NewEncoder(w).Encode(page)
}

func newTestPiece(t *testing.T, f *fakeAirtable) *Piece {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(httpclient.New(httpclient.WithLogger(logging.Discard())), WithBaseURL(srv.URL))
}

func newTestContext() *piece.Context {
	return &piece.Context{
		Props: piece.Props{
			"authentication": "patXYZ",
			"base":           "appX",
			"table":          map[string]any{"id": "tblY", "name": "Contacts"},
		},
		Store:  store.NewMemory(),
		Logger: logging.Discard(),
	}
}

func trigger(t *testing.T, p *Piece, name string) piece.Trigger {
	t.Helper()
	tr, ok := piece.FindTrigger(p, name)
	require.True(t, ok, "trigger %q", name)
	return tr
}

func TestNewRecordRunEmitsAddedRecords(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"))
	p := newTestPiece(t, f)
	tr := trigger(t, p, "new_record")
	tc := newTestContext()

	require.NoError(t, tr.OnEnable(ctx, tc))

	f.set(rec("1", "A"), rec("2", "B"))
	items, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, []any{rec("2", "B")}, items)
	assert.Equal(t, "Bearer patXYZ", f.auth)
}

func TestNewRecordEnableThenRunIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"), rec("2", "B"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()

	require.NoError(t, tr.OnEnable(ctx, tc))
	items, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNewRecordRunTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()

	first, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Len(t, first, 1, "missing snapshot is treated as empty")

	second, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestNewRecordFollowsPagination(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{pageSize: 2}
	f.set(rec("1", "A"), rec("2", "B"), rec("3", "C"), rec("4", "D"), rec("5", "E"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()

	items, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 3, f.calls)

	stored, ok, err := store.GetJSON[[]Record](ctx, tc.Store, newRecordStoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, stored, 5)
}

func TestSnapshotStopsOnRepeatedOffset(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{stuckOffset: "itr1"}
	f.set(rec("1", "A"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()

	err := tr.OnEnable(ctx, tc)
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryNetwork))
	assert.Contains(t, err.Error(), "itr1")
	assert.Equal(t, 2, f.calls)

	_, ok, err := tc.Store.Get(ctx, newRecordStoreKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmptyTokenIsInvalidBearerToken(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()
	tc.Props["authentication"] = ""

	require.NoError(t, piece.ValidateProps(tr.Meta().Props, tc.Props))
	err := tr.OnEnable(ctx, tc)
	require.ErrorIs(t, err, piece.ErrInvalidBearerToken)
	assert.Equal(t, 0, f.calls)
}

func TestNewRecordDisableClearsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()

	require.NoError(t, tr.OnEnable(ctx, tc))
	require.NoError(t, tr.OnDisable(ctx, tc))

	_, ok, err := tc.Store.Get(ctx, newRecordStoreKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRecordFetchErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()
	require.NoError(t, tr.OnEnable(ctx, tc))

	f.status = http.StatusNotFound
	_, err := tr.Run(ctx, tc)
	require.Error(t, err)

	var httpErr *httpclient.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	stored, ok, err := store.GetJSON[[]Record](ctx, tc.Store, newRecordStoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Record{rec("1", "A")}, stored, "snapshot untouched on failure")
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()
	delete(tc.Props, "authentication")

	err := tr.OnEnable(ctx, tc)
	require.ErrorIs(t, err, piece.ErrInvalidBearerToken)
	assert.Equal(t, 0, f.calls)
}

func TestTablePropAcceptsPlainID(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"))
	tr := trigger(t, newTestPiece(t, f), "new_record")
	tc := newTestContext()
	tc.Props["table"] = "tblY"

	items, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMissingTableIsValidationError(t *testing.T) {
	tc := newTestContext()
	delete(tc.Props, "table")
	tr := trigger(t, newTestPiece(t, &fakeAirtable{}), "new_record")

	err := tr.OnEnable(context.Background(), tc)
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation))
}

func TestNewOrUpdatedRecord(t *testing.T) {
	ctx := context.Background()
	f := &fakeAirtable{}
	f.set(rec("1", "A"), rec("2", "B"))
	tr := trigger(t, newTestPiece(t, f), "new_or_updated_record")
	tc := newTestContext()

	require.NoError(t, tr.OnEnable(ctx, tc))

	f.set(rec("1", "A"), rec("2", "B2"), rec("3", "C"))
	items, err := tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, []any{
		Change{Change: ChangeUpdated, Record: rec("2", "B2")},
		Change{Change: ChangeCreated, Record: rec("3", "C")},
	}, items)

	items, err = tr.Run(ctx, tc)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDropdownOptions(t *testing.T) {
	ctx := context.Background()
	p := newTestPiece(t, &fakeAirtable{})
	defs := trigger(t, p, "new_record").Meta().Props

	props := piece.Props{"authentication": "patXYZ", "base": "appX"}

	var base, table piece.PropDef
	for _, d := range defs {
		switch d.Name {
		case "base":
			base = d
		case "table":
			table = d
		}
	}
	require.NotNil(t, base.Options)
	require.NotNil(t, table.Options)

	bases, err := base.Options(ctx, props)
	require.NoError(t, err)
	assert.Equal(t, []piece.Option{{Label: "CRM", Value: "appX"}}, bases)

	tables, err := table.Options(ctx, props)
	require.NoError(t, err)
	assert.Equal(t, []piece.Option{{
		Label: "Contacts",
		Value: map[string]any{"id": "tblY", "name": "Contacts"},
	}}, tables)
}

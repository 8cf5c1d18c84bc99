package crm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ranaawaisahmad/utmApp/crm"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/stretchr/testify/require"
)

func newClient(server *httptest.Server) *crm.Client {
	return crm.NewClient(crm.ClientOptions{
		BaseURL:     server.URL,
		HTTPClient:  server.Client(),
		CallTimeout: time.Second,
	})
}

func TestClient_RecentlyCreated(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"contacts":[{"vid":51,"properties":{
			"createdate":{"value":"1709294400000"},
			"lastmodifieddate":{"value":"1709294460000"}}}],"has-more":true}`))
	}))
	defer server.Close()

	contacts, err := newClient(server).RecentlyCreated(context.Background(), "A1", 1)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, "51", contacts[0].ID)

	created, err := contacts[0].CreatedAt()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), created)
	modified, err := contacts[0].LastModifiedAt()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC), modified)

	require.Equal(t, "/contacts/v1/lists/recently_created/contacts/recent", gotPath)
	require.Equal(t, "Bearer A1", gotAuth)
	require.Equal(t, []string{"1"}, gotQuery["count"])
	require.ElementsMatch(t, []string{"createdate", "lastmodifieddate"}, gotQuery["property"])
}

func TestClient_RecentlyUpdatedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","category":"EXPIRED_AUTHENTICATION","message":"token expired"}`))
	}))
	defer server.Close()

	_, err := newClient(server).RecentlyUpdated(context.Background(), "A1", 1)
	require.ErrorIs(t, err, apperrors.ErrFetch)
	require.Contains(t, err.Error(), "EXPIRED_AUTHENTICATION")

	var statusErr *crm.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestClient_UpdateContact(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody struct {
		Properties map[string]string `json:"properties"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"51"}`))
	}))
	defer server.Close()

	err := newClient(server).UpdateContact(context.Background(), "A1", "51", map[string]string{
		"utm_source_last_touch": "newsletter",
		"utm_term_last_touch":   "",
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPatch, gotMethod)
	require.Equal(t, "/crm/v3/objects/contacts/51", gotPath)
	require.Equal(t, map[string]string{"utm_source_last_touch": "newsletter", "utm_term_last_touch": ""}, gotBody.Properties)
}

func TestClient_UpdateContactFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","category":"VALIDATION_ERROR","message":"Property \"utm_source1\" does not exist"}`))
	}))
	defer server.Close()

	err := newClient(server).UpdateContact(context.Background(), "A1", "51", map[string]string{"utm_source1": "x"})
	require.ErrorIs(t, err, apperrors.ErrWrite)
	require.Contains(t, err.Error(), "contact 51")
	require.Contains(t, err.Error(), "does not exist")
}

func TestClient_GetContact(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("properties")
		_, _ = w.Write([]byte(`{"id":"51","properties":{"createdate":"2024-03-01T12:00:00.000Z","utm_source1":null}}`))
	}))
	defer server.Close()

	contact, err := newClient(server).GetContact(context.Background(), "A1", "51", "createdate", "utm_source1")
	require.NoError(t, err)
	require.Equal(t, "createdate,utm_source1", gotQuery)
	require.Equal(t, "51", contact.ID)
	require.Equal(t, "", contact.Properties["utm_source1"])

	created, err := contact.CreatedAt()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), created)
}

func TestClient_CreateProperty(t *testing.T) {
	existing := map[string]bool{"utm_source1": true}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var def crm.PropertyDefinition
		_ = json.NewDecoder(r.Body).Decode(&def)
		if existing[def.Name] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"category":"OBJECT_ALREADY_EXISTS","message":"exists"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newClient(server)
	def := crm.PropertyDefinition{Name: "utm_term1", Label: "utm_term1", Type: "string", FieldType: "text", GroupName: "contactinformation"}
	require.NoError(t, client.CreateProperty(context.Background(), "A1", def))

	def.Name = "utm_source1"
	require.ErrorIs(t, client.CreateProperty(context.Background(), "A1", def), apperrors.ErrPropertyExists)
}

func TestClient_CallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := crm.NewClient(crm.ClientOptions{BaseURL: server.URL, HTTPClient: server.Client(), CallTimeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.RecentlyCreated(context.Background(), "A1", 1)
	require.ErrorIs(t, err, apperrors.ErrFetch)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestParseTimestamp(t *testing.T) {
	_, err := crm.ParseTimestamp("")
	require.Error(t, err)
	_, err = crm.ParseTimestamp("yesterday")
	require.Error(t, err)

	ts, err := crm.ParseTimestamp("2024-03-01T12:00:30Z")
	require.NoError(t, err)
	require.Equal(t, 30, ts.Second())
}

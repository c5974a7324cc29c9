package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

func newKommoTestService(t *testing.T, handler http.Handler) (*KommoService, *memRepo) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	repo := newMemRepo()
	s := NewKommoService(repo, srv.URL, "stale-token", "refresh-1", "client-id", "client-secret", "https://example.com/cb")
	return s, repo
}

func TestKommoTokenRefreshRetriesOnce(t *testing.T) {
	var refreshCalls, patchCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.Equal(t, "refresh-1", body["refresh_token"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh-token",
			"refresh_token": "refresh-2",
			"expires_in":    86400,
		})
	})
	mux.HandleFunc("/api/v4/leads/501", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&patchCalls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":501}`))
	})

	s, repo := newKommoTestService(t, mux)

	err := s.UpdateLeadStatus(context.Background(), 501, 98067596, 12704980)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&patchCalls))

	// new pair was persisted best-effort
	assert.Equal(t, "fresh-token", repo.accessToken)
	assert.Equal(t, "refresh-2", repo.refreshToken)
	assert.Equal(t, 1, repo.tokenSaves)
}

func TestKommoSecond401IsAuthError(t *testing.T) {
	var refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "still-bad",
			"refresh_token": "refresh-2",
		})
	})
	mux.HandleFunc("/api/v4/leads/501", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	s, _ := newKommoTestService(t, mux)

	err := s.UpdateLeadStatus(context.Background(), 501, 98067596, 12704980)
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls), "must not loop on refresh")
}

func TestKommoFailedRefreshIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"hint":"refresh token revoked"}`))
	})
	mux.HandleFunc("/api/v4/leads/1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	s, _ := newKommoTestService(t, mux)

	err := s.UpdateLeadStatus(context.Background(), 1, 2, 3)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestKommoRemoteAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/leads/9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"title":"validation failed"}`))
	})

	s, _ := newKommoTestService(t, mux)

	_, err := s.GetLead(context.Background(), 9)
	var apiErr *RemoteAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "validation failed")
}

func TestKommoCreateLead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/leads", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		// Kommo takes a batch array and answers with an envelope.
		var batch []map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		require.Len(t, batch, 1)
		assert.Equal(t, "OS 1042 - Gol ABC1234", batch[0]["name"])

		w.Write([]byte(`{"_embedded":{"leads":[{"id":900,"name":"OS 1042 - Gol ABC1234"}]}}`))
	})

	s, _ := newKommoTestService(t, mux)

	lead, err := s.CreateLead(context.Background(), &model.KommoLead{Name: "OS 1042 - Gol ABC1234"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), lead.ID)
}

func TestKommoCreateContact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/contacts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_embedded":{"contacts":[{"id":300,"name":"João Silva"}]}}`))
	})

	s, _ := newKommoTestService(t, mux)

	contact, err := s.CreateContact(context.Background(), &model.KommoContact{Name: "João Silva"})
	require.NoError(t, err)
	assert.Equal(t, int64(300), contact.ID)
}

func TestKommoFindContactByPhone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/contacts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "+5511999990000" {
			w.Write([]byte(`{"_embedded":{"contacts":[{"id":300,"name":"João Silva"}]}}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	s, _ := newKommoTestService(t, mux)

	contact, err := s.FindContactByPhone(context.Background(), "+5511999990000")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, int64(300), contact.ID)

	contact, err = s.FindContactByPhone(context.Background(), "+5500000000000")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestKommoFindLeadByCustomField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/leads", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		filter := r.URL.Query().Get("filter[custom_fields_values][966001][]")
		if filter == "ABC1234" {
			w.Write([]byte(`{"_embedded":{"leads":[{"id":501,"name":"João"}]}}`))
			return
		}
		// Kommo answers 204 empty when nothing matches.
		w.WriteHeader(http.StatusNoContent)
	})

	s, _ := newKommoTestService(t, mux)

	id, err := s.FindLeadByCustomField(context.Background(), 966001, "ABC1234")
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)

	id, err = s.FindLeadByCustomField(context.Background(), 966001, "ZZZ0000")
	require.NoError(t, err)
	assert.Zero(t, id)
}

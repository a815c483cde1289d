package openproject

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_Health(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_type":"Root","coreVersion":"16.0.1"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "secret-key", true)
	require.NoError(t, client.Health(context.Background()))

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("apikey:secret-key"))
	assert.Equal(t, want, gotAuth)

	version, err := client.CoreVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "16.0.1", version)
}

func TestAPIClient_AuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "bad-key", true)
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
}

func TestAPIClient_FindPrincipalByLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "filters=")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_embedded":{"elements":[{"id":12,"_type":"User","name":"J Doe","login":"jdoe"}]}}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", true)
	principal, err := client.FindPrincipalByLogin(context.Background(), "jdoe")
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, 12, principal.ID)
	assert.Equal(t, "jdoe", principal.Login)
}

func TestAPIClient_FindPrincipalByLogin_Miss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_embedded":{"elements":[]}}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", true)
	principal, err := client.FindPrincipalByLogin(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, principal)
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", true)
	client.http.RetryWaitMin = 0
	client.http.RetryWaitMax = 0
	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestAPIClient_UploadUserAvatar(t *testing.T) {
	var gotPath, gotContentType string
	var gotFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", true)
	require.NoError(t, client.UploadUserAvatar(context.Background(), 42, []byte("png-bytes")))

	assert.Equal(t, "/api/v3/users/42/avatar", gotPath)
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.Equal(t, []byte("png-bytes"), gotFile)
}

func TestAPIClient_UploadUserAvatar_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"file too large"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", true)
	client.http.RetryWaitMin = 0
	client.http.RetryWaitMax = 0
	err := client.UploadUserAvatar(context.Background(), 42, []byte("huge"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestNewAPIClient_InsecureSkipsCertVerification(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "key", false)
	require.NoError(t, client.Health(context.Background()))
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"course-notify/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE credit_accounts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.Exec("UPDATE credit_accounts SET balance = balance - 1")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("insufficient balance")
		err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "ledger bug", func() {
			_ = WithTx(context.Background(), db, func(tx *sql.Tx) error { panic("ledger bug") })
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin tx")
	})
}

func TestNewPostgres_PoolDefaults(t *testing.T) {
	pg, err := NewPostgres(config.PostgresConfig{Host: "localhost", Port: 5432, Database: "notify", User: "notify", SSLMode: "disable", MaxIdle: 50})
	require.NoError(t, err)
	defer pg.Close()

	assert.Equal(t, defaultMaxOpen, pg.DB.Stats().MaxOpenConnections)
}

func TestRedis(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	rc, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, rc.Ping(context.Background()))

	mr.Close()
	err = rc.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), mr.Addr())
	assert.NoError(t, rc.Close())
}

type healthTransport struct {
	status int
	body   string
}

func (h healthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: h.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(h.body)),
	}, nil
}

func TestElasticsearchPing(t *testing.T) {
	tests := []struct {
		name    string
		tr      healthTransport
		wantErr string
	}{
		{"green", healthTransport{http.StatusOK, `{"status":"green"}`}, ""},
		{"yellow", healthTransport{http.StatusOK, `{"status":"yellow"}`}, ""},
		{"red", healthTransport{http.StatusOK, `{"status":"red"}`}, "cluster is red"},
		{"unauthorized", healthTransport{http.StatusUnauthorized, `{}`}, "401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{"http://es.local:9200"}}, tt.tr)
			require.NoError(t, err)

			err = es.Ping(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

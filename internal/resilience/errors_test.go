package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid path"), false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("download: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"conn reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"ftp 421", &textproto.Error{Code: 421, Msg: "Service not available"}, true},
		{"ftp 450", fmt.Errorf("retr: %w", &textproto.Error{Code: 450, Msg: "File busy"}), true},
		{"ftp 550", &textproto.Error{Code: 550, Msg: "No such file"}, false},
		{"message pattern", errors.New("read: Connection reset by peer"), true},
		{"pg deadlock", fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pg numeric overflow", &pgconn.PgError{Code: "22003"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("bad gateway")
	err := NewTransientError(inner, 502)
	assert.Equal(t, "bad gateway", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 502, err.StatusCode)
}

func TestIsTransientSQLState(t *testing.T) {
	for _, code := range []string{"08000", "08006", "40001", "40P01", "53300", "57P03"} {
		assert.True(t, IsTransientSQLState(code), code)
	}
	for _, code := range []string{"", "23505", "23502", "22P02", "42P01"} {
		assert.False(t, IsTransientSQLState(code), code)
	}
}

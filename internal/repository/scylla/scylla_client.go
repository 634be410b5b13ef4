package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"crm-backend/internal/config"
	"crm-backend/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	CreateIdentity      *gocql.Query
	CreateEmailToUser   *gocql.Query
	GetIdentityByID     *gocql.Query
	GetUserByEmail      *gocql.Query
	UpdateIdentityState *gocql.Query
	UpdateLastLogin     *gocql.Query
	UpdateMFA           *gocql.Query

	CreateSession      *gocql.Query
	CreateSessionByID  *gocql.Query
	GetSessionByID     *gocql.Query
	ListSessionsByUser *gocql.Query
	RevokeSession      *gocql.Query
	RevokeSessionByID  *gocql.Query

	CreateDevice        *gocql.Query
	GetDeviceByPrint    *gocql.Query
	TouchDevice         *gocql.Query
	ListDevicesByUser   *gocql.Query
	UpdateDeviceTrusted *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateIdentity = s.Session.Query(`
    INSERT INTO identities (
        user_bucket, user_id, email, email_encrypted, email_key_id,
        password_hash, status, roles, organization_id,
        mfa_enabled, mfa_secret, created_at, last_login_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetIdentityByID = s.Session.Query(`
        SELECT user_bucket, user_id, email, email_encrypted, email_key_id,
            password_hash, status, roles, organization_id,
            mfa_enabled, mfa_secret, created_at, last_login_at, updated_at
        FROM identities WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByEmail = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email = ?`)

	prepared.UpdateIdentityState = s.Session.Query(`
        UPDATE identities SET status = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE identities SET last_login_at = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateMFA = s.Session.Query(`
        UPDATE identities SET mfa_enabled = ?, mfa_secret = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateSession = s.Session.Query(`
        INSERT INTO sessions (
            user_id, session_id, device_id, ip_address, user_agent,
            is_remembered, access_token_hash, refresh_token_hash,
            created_at, expires_at, revoked_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateSessionByID = s.Session.Query(`
        INSERT INTO sessions_by_id (session_id, user_id, created_at)
        VALUES (?, ?, ?)`)

	prepared.GetSessionByID = s.Session.Query(`
        SELECT session_id, user_id FROM sessions_by_id WHERE session_id = ?`)

	prepared.ListSessionsByUser = s.Session.Query(`
        SELECT user_id, session_id, device_id, ip_address, user_agent,
            is_remembered, access_token_hash, refresh_token_hash,
            created_at, expires_at, revoked_at
        FROM sessions WHERE user_id = ?`)

	prepared.RevokeSession = s.Session.Query(`
        UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND session_id = ?`)

	prepared.RevokeSessionByID = s.Session.Query(`
        DELETE FROM sessions_by_id WHERE session_id = ?`)

	prepared.CreateDevice = s.Session.Query(`
        INSERT INTO devices (
            user_id, fingerprint, device_id, is_trusted,
            last_used_at, last_ip_address, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetDeviceByPrint = s.Session.Query(`
        SELECT user_id, fingerprint, device_id, is_trusted,
            last_used_at, last_ip_address, created_at
        FROM devices WHERE user_id = ? AND fingerprint = ?`)

	prepared.TouchDevice = s.Session.Query(`
        UPDATE devices SET last_used_at = ?, last_ip_address = ?
        WHERE user_id = ? AND fingerprint = ?`)

	prepared.ListDevicesByUser = s.Session.Query(`
        SELECT user_id, fingerprint, device_id, is_trusted,
            last_used_at, last_ip_address, created_at
        FROM devices WHERE user_id = ?`)

	prepared.UpdateDeviceTrusted = s.Session.Query(`
        UPDATE devices SET is_trusted = ? WHERE user_id = ? AND fingerprint = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("Selected ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"subscription_live/internal/config"
)

// --- ScyllaDB configuration ---
type ScyllaKeyspaceConfig struct {
	Hosts       []string
	Keyspace    string
	Username    string
	Password    string
	SSLEnabled  bool
	CACertPath  string
	Timeout     time.Duration
	NumConns    int
	Consistency gocql.Consistency
}

type ScyllaManager struct {
	sessions map[string]*gocql.Session // keyspace → session
	configs  map[string]ScyllaKeyspaceConfig
	mu       sync.Mutex
}

// Connections groups every backing service the server talks to.
// Elastic and MinIO are nil when they are not configured or unreachable.
type Connections struct {
	Scylla  *ScyllaManager
	Redis   *redis.Client
	Elastic *elasticsearch.Client
	MinIO   *minio.Client

	productsKS string
	usersKS    string
	ordersKS   string
}

// ConnectDatabases opens all connections. ScyllaDB and Redis are required.
func ConnectDatabases(cfg *config.Config) (*Connections, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conns := &Connections{
		productsKS: cfg.Scylla.ProductsKeyspace,
		usersKS:    cfg.Scylla.UsersKeyspace,
		ordersKS:   cfg.Scylla.OrdersKeyspace,
	}

	// 1. ScyllaDB (one session per keyspace)
	scylla, err := InitScyllaDB(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("scylla init: %w", err)
	}
	conns.Scylla = scylla

	// 2. Redis
	rdb, err := connectRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	conns.Redis = rdb

	// 3. Elasticsearch (optional)
	conns.Elastic = connectElastic(cfg.Elastic)

	// 4. MinIO (optional)
	conns.MinIO = connectMinIO(ctx, cfg.MinIO)

	log.Println("✅ All databases connected")
	return conns, nil
}

func (c *Connections) ProductsSession() (*gocql.Session, error) {
	return c.Scylla.GetSession(c.productsKS)
}

func (c *Connections) UsersSession() (*gocql.Session, error) {
	return c.Scylla.GetSession(c.usersKS)
}

func (c *Connections) OrdersSession() (*gocql.Session, error) {
	return c.Scylla.GetSession(c.ordersKS)
}

func (c *Connections) Close() {
	if c.Scylla != nil {
		c.Scylla.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Printf("⚠️ Redis close: %v", err)
		}
	}
}

// =============================================
// SCYLLA DB (multi-keyspace, SSL and roles)
// =============================================

func InitScyllaDB(cfg config.ScyllaConfig) (*ScyllaManager, error) {
	sm := &ScyllaManager{
		sessions: make(map[string]*gocql.Session),
		configs:  loadScyllaConfigs(cfg),
	}

	for keyspace := range sm.configs {
		if _, err := sm.GetSession(keyspace); err != nil {
			return nil, fmt.Errorf("keyspace %s: %w", keyspace, err)
		}
	}

	// Tables are created by scripts/scylladb_init.cql, not at startup.
	return sm, nil
}

func loadScyllaConfigs(cfg config.ScyllaConfig) map[string]ScyllaKeyspaceConfig {
	configs := make(map[string]ScyllaKeyspaceConfig)

	base := ScyllaKeyspaceConfig{
		Hosts:       cfg.Hosts,
		SSLEnabled:  cfg.SSLEnabled,
		CACertPath:  cfg.CACertPath,
		Timeout:     5 * time.Second,
		NumConns:    20,
		Consistency: gocql.Quorum,
	}

	add := func(keyspace, role, password string) {
		if keyspace == "" {
			return
		}
		ks := base
		ks.Keyspace = keyspace
		ks.Username = role
		ks.Password = password
		configs[keyspace] = ks
	}

	add(cfg.ProductsKeyspace, cfg.ProductsRole, cfg.ProductsPassword)
	add(cfg.UsersKeyspace, cfg.UsersRole, cfg.UsersPassword)
	add(cfg.OrdersKeyspace, cfg.OrdersRole, cfg.OrdersPassword)

	return configs
}

func createScyllaCluster(config ScyllaKeyspaceConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = config.Consistency
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = config.Timeout
	cluster.NumConns = config.NumConns
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = 1 * time.Second

	if config.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	if config.SSLEnabled && config.CACertPath != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 config.CACertPath,
			EnableHostVerification: true,
		}
	}

	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	return cluster
}

// GetSession returns the session for a keyspace, recreating it when it no longer answers.
func (sm *ScyllaManager) GetSession(keyspace string) (*gocql.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	config, exists := sm.configs[keyspace]
	if !exists {
		return nil, fmt.Errorf("keyspace '%s' not configured", keyspace)
	}

	if session, exists := sm.sessions[keyspace]; exists {
		if !session.Closed() {
			return session, nil
		}
		delete(sm.sessions, keyspace)
	}

	session, err := createScyllaCluster(config).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", keyspace, err)
	}

	sm.sessions[keyspace] = session
	log.Printf("✅ New ScyllaDB session for keyspace '%s' (role: %s)", keyspace, config.Username)

	return session, nil
}

func (sm *ScyllaManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for keyspace, session := range sm.sessions {
		session.Close()
		log.Printf("🔌 ScyllaDB session closed for keyspace '%s'", keyspace)
	}
	sm.sessions = make(map[string]*gocql.Session)
}

// =============================================
// REDIS
// =============================================
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Println("✅ Connected to Redis")
	return rdb, nil
}

// =============================================
// ELASTICSEARCH
// =============================================
func connectElastic(cfg config.ElasticConfig) *elasticsearch.Client {
	if cfg.URL == "" {
		log.Println("⚠️ ELASTIC_URL not set, product search falls back to catalog filtering")
		return nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.User,
		Password:  cfg.Password,
	})
	if err != nil {
		log.Printf("⚠️ Elasticsearch client: %v", err)
		return nil
	}

	res, err := client.Info()
	if err != nil {
		log.Printf("⚠️ Elasticsearch unreachable: %v", err)
		return nil
	}
	defer res.Body.Close()

	log.Println("✅ Connected to Elasticsearch")
	return client
}

// =============================================
// MINIO
// =============================================
func connectMinIO(ctx context.Context, cfg config.MinIOConfig) *minio.Client {
	if cfg.Endpoint == "" {
		log.Println("⚠️ MINIO_ENDPOINT not set, image uploads disabled")
		return nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Printf("⚠️ MinIO client: %v", err)
		return nil
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		log.Printf("⚠️ MinIO bucket check: %v", err)
		return nil
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			log.Printf("⚠️ MinIO bucket create: %v", err)
			return nil
		}
		log.Println("🪣 Bucket created:", cfg.Bucket)
	} else {
		log.Println("🪣 MinIO bucket present:", cfg.Bucket)
	}

	log.Println("✅ Connected to MinIO:", cfg.Endpoint)
	return client
}

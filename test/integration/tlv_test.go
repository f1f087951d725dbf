package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/mongo"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/ticket-lifecycle-validation/internal/adapters/redis"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/claims"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/clock"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/config"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/domain"
	httphandler "github.com/robertarktes/ticket-lifecycle-validation/internal/http"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/idempotency"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/lifecycle"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/rateLimit"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/scan"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestIntegration_ClaimVerifyScan(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongo", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbHost, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CRDBDSN:      "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/tlv?sslmode=disable",
		MongoURI:     "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:    redisHost + ":" + redisPort.Port(),
		RabbitURL:    "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		GraceWindow:  24 * time.Hour,
		ChallengeTTL: 10 * time.Minute,
		ChallengeGap: time.Second,
		ChallengeCap: 5,
		OTLPEndpoint: "", // Skip otel for test
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, "CREATE DATABASE IF NOT EXISTS tlv"); err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("tlv"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}

	clk := clock.NewSystem()
	claimsSvc := claims.NewService(repo, redisCache, rl, rabbitPub, clk, logger, cfg.ChallengeTTL, cfg.ChallengeGap, cfg.ChallengeCap)
	lifecycleSvc := lifecycle.NewService(repo, clk, logger)
	scanner := scan.NewService(repo, lifecycleSvc, audit, clk, logger)

	handlers := httphandler.NewHandlers(cfg, claimsSvc, lifecycleSvc, scanner, idemp, audit)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{Addr: ":8081", Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Error(err)
		}
	}()
	defer srv.Shutdown(ctx)
	time.Sleep(100 * time.Millisecond)

	// Seed a free event.
	organizerID := uuid.New()
	event := domain.Event{
		ID:          uuid.New(),
		OrganizerID: organizerID,
		Title:       "Community Meetup",
		Venue:       "Hall A",
		StartsAt:    time.Now().Add(72 * time.Hour),
		IsFree:      true,
		Currency:    "USD",
	}
	if err := repo.CreateEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	base := "http://localhost:8081"
	attendeeEmail := "ada@example.com"

	availResp, err := http.Get(base + "/v1/events/" + event.ID.String() + "/availability")
	if err != nil || availResp.StatusCode != http.StatusOK {
		t.Fatalf("availability failed: %v, status: %d", err, availResp.StatusCode)
	}
	var avail struct {
		Available bool `json:"available"`
	}
	json.NewDecoder(availResp.Body).Decode(&avail)
	if !avail.Available {
		t.Fatal("expected event to be available")
	}

	// Request a challenge.
	body, _ := json.Marshal(map[string]string{"email": attendeeEmail})
	resp, err := http.Post(base+"/v1/claims/challenge", "application/json", bytes.NewReader(body))
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("challenge failed: %v, status: %d", err, resp.StatusCode)
	}

	// The code goes out through the notification dispatcher; for the
	// test, read it straight from the store.
	challenge, err := repo.GetActiveChallenge(ctx, attendeeEmail, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	body, _ = json.Marshal(map[string]string{"email": attendeeEmail, "code": challenge.Code})
	resp, err = http.Post(base+"/v1/claims/verify", "application/json", bytes.NewReader(body))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("verify failed: %v, status: %d", err, resp.StatusCode)
	}

	// Claim a ticket.
	claimReq := map[string]interface{}{
		"event_id": event.ID.String(),
		"attendee": map[string]string{
			"name":  "Ada",
			"email": attendeeEmail,
			"phone": "+100",
		},
		"payment_method": "online",
	}
	body, _ = json.Marshal(claimReq)
	req, _ := http.NewRequest("POST", base+"/v1/tickets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("claim failed: %v, status: %d", err, resp.StatusCode)
	}
	var claimResp struct {
		TicketID      uuid.UUID `json:"ticket_id"`
		TicketCode    string    `json:"ticket_code"`
		PaymentStatus string    `json:"payment_status"`
	}
	json.NewDecoder(resp.Body).Decode(&claimResp)
	if claimResp.PaymentStatus != "paid" {
		t.Fatalf("free event claim status = %s, want paid", claimResp.PaymentStatus)
	}

	// First scan admits.
	scanBody, _ := json.Marshal(map[string]string{"code": claimResp.TicketCode})
	req, _ = http.NewRequest("POST", base+"/v1/scan", bytes.NewReader(scanBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal-ID", organizerID.String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("scan failed: %v, status: %d", err, resp.StatusCode)
	}
	var scanResp struct {
		Outcome string `json:"outcome"`
	}
	json.NewDecoder(resp.Body).Decode(&scanResp)
	if scanResp.Outcome != "valid" {
		t.Fatalf("first scan outcome = %s, want valid", scanResp.Outcome)
	}

	// Second scan of the same code is rejected.
	req, _ = http.NewRequest("POST", base+"/v1/scan", bytes.NewReader(scanBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal-ID", organizerID.String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("second scan failed: %v, status: %d", err, resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&scanResp)
	if scanResp.Outcome != "already_used" {
		t.Fatalf("second scan outcome = %s, want already_used", scanResp.Outcome)
	}
}

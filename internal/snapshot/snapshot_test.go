package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suwandre/fundingarb/config"
	"github.com/suwandre/fundingarb/internal/models"
)

var takenAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(symbol string, apr float64) Snapshot {
	return New([]models.FundingOpportunity{{
		Symbol:        symbol,
		LongExchange:  "binance",
		ShortExchange: "bybit",
		RateDiff:      0.0005,
		IntervalHours: 8,
		APR:           apr,
		DiscoveredAt:  takenAt,
	}}, takenAt)
}

func TestNew_AssignsIDAndUTC(t *testing.T) {
	local := time.Date(2026, 3, 1, 14, 0, 0, 0, time.FixedZone("CET", 2*3600))
	a := New(nil, local)
	b := New(nil, local)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.Timestamp.Location())
	assert.True(t, a.Timestamp.Equal(takenAt))
}

func TestMemorySink_KeepsNewestFirst(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink(2)

	_, err := sink.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, sink.Save(ctx, sample("BTC/USDT", 10)))
	require.NoError(t, sink.Save(ctx, sample("ETH/USDT", 20)))
	require.NoError(t, sink.Save(ctx, sample("SOL/USDT", 30)))

	assert.Equal(t, 2, sink.Len())
	latest, err := sink.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDT", latest.Opportunities[0].Symbol)
}

func TestMemorySink_DefaultKeep(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink(0)
	for range DefaultKeep + 3 {
		require.NoError(t, sink.Save(ctx, sample("BTC/USDT", 1)))
	}
	assert.Equal(t, DefaultKeep, sink.Len())
}

func TestRedisSink_Save(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sink := NewRedisSink(client, "fundarb:snapshots", 5)

	s := sample("BTC/USDT", 54.75)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectLPush("fundarb:snapshots", data).SetVal(1)
	mock.ExpectLTrim("fundarb:snapshots", 0, 4).SetVal("OK")

	require.NoError(t, sink.Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_SaveError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sink := NewRedisSink(client, "fundarb:snapshots", 5)

	s := sample("BTC/USDT", 54.75)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectLPush("fundarb:snapshots", data).SetErr(errors.New("connection refused"))

	err = sink.Save(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisSink_Latest(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sink := NewRedisSink(client, "fundarb:snapshots", 5)

	s := sample("ETH/USDT", 12.5)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectLIndex("fundarb:snapshots", 0).SetVal(string(data))

	got, err := sink.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, s.Timestamp.Equal(got.Timestamp))
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, "ETH/USDT", got.Opportunities[0].Symbol)
	assert.InDelta(t, 12.5, got.Opportunities[0].APR, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_LatestEmpty(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sink := NewRedisSink(client, "fundarb:snapshots", 5)

	mock.ExpectLIndex("fundarb:snapshots", 0).RedisNil()

	_, err := sink.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newPostgresMock(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSink(sqlx.NewDb(db, "postgres"), 3), mock
}

func TestPostgresSink_EnsureSchema(t *testing.T) {
	sink, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS opportunity_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_SaveInsertsAndPrunes(t *testing.T) {
	sink, mock := newPostgresMock(t)
	s := sample("BTC/USDT", 54.75)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO opportunity_snapshots")).
		WithArgs(s.ID.String(), s.Timestamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM opportunity_snapshots")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sink.Save(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_SaveRollsBackOnInsertError(t *testing.T) {
	sink, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO opportunity_snapshots")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := sink.Save(context.Background(), sample("BTC/USDT", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Latest(t *testing.T) {
	sink, mock := newPostgresMock(t)
	s := sample("SOL/USDT", 33.3)
	data, err := json.Marshal(s.Opportunities)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "taken_at", "opportunities"}).
		AddRow(s.ID.String(), s.Timestamp, data)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, taken_at, opportunities FROM opportunity_snapshots")).
		WillReturnRows(rows)

	got, err := sink.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, s.Timestamp.Equal(got.Timestamp))
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, "SOL/USDT", got.Opportunities[0].Symbol)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_LatestEmpty(t *testing.T) {
	sink, mock := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, taken_at, opportunities FROM opportunity_snapshots")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "taken_at", "opportunities"}))

	_, err := sink.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakePublisher struct {
	subject string
	data    [][]byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subject = subject
	f.data = append(f.data, data)
	return nil
}

func TestNATSPublisher_SavesThenPublishes(t *testing.T) {
	ctx := context.Background()
	inner := NewMemorySink(3)
	pub := &fakePublisher{}
	sink := NewNATSPublisher(inner, pub, "fundarb.opportunities")

	s := sample("BTC/USDT", 54.75)
	require.NoError(t, sink.Save(ctx, s))

	assert.Equal(t, "fundarb.opportunities", pub.subject)
	require.Len(t, pub.data, 1)

	var got Snapshot
	require.NoError(t, json.Unmarshal(pub.data[0], &got))
	assert.Equal(t, s.ID, got.ID)

	latest, err := sink.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.ID, latest.ID)
}

func TestNATSPublisher_PublishFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	inner := NewMemorySink(3)
	sink := NewNATSPublisher(inner, &fakePublisher{err: errors.New("nats: connection closed")}, "fundarb.opportunities")

	require.NoError(t, sink.Save(ctx, sample("BTC/USDT", 1)))
	assert.Equal(t, 1, inner.Len())
	assert.NoError(t, sink.Close())
}

func TestOpen_Memory(t *testing.T) {
	sink, err := Open(context.Background(), configFor("memory"))
	require.NoError(t, err)
	_, ok := sink.(*MemorySink)
	assert.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), configFor("cassandra"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func configFor(driver string) config.SinkConfig {
	cfg := config.Default().Sink
	cfg.Driver = driver
	cfg.NATS.URL = ""
	return cfg
}

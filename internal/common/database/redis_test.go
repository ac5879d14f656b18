package database

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-backend-llm/internal/common/config"
)

func TestRedisClient_Ping(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := NewRedisFromClient(db)

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, client.Ping(context.Background()))

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)

	client, err := NewRedis(config.RedisConfig{Address: "localhost:6379"})
	require.NoError(t, err)
	assert.NotNil(t, client.GetClient())
	assert.NoError(t, client.Close())
}

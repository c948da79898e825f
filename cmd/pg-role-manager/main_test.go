package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPoolConfig(t *testing.T) {
	poolCfg := newPoolConfig(PoolConfig{
		MaxConns:       5,
		MaxOverflow:    7,
		AcquireTimeout: 12,
	})

	assert.Equal(t, int32(5), poolCfg.MaxConns)
	assert.Equal(t, int32(7), poolCfg.MaxOverflow)
	assert.Equal(t, 12*time.Second, poolCfg.AcquireTimeout)
}

func TestRegistryConnString(t *testing.T) {
	connString := registryConnString(RegistryConfig{
		Host:     "db.internal",
		Port:     5433,
		Database: "role_registry_db",
		User:     "registry",
		Password: "pwd",
	})
	assert.Equal(t, "host=db.internal port=5433 user=registry password=pwd dbname=role_registry_db", connString)
}

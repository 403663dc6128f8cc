// Package transport 建立到账本节点的连接
//
// 端点按优先级依次尝试，每个端点先用 eth_chainId 探活，第一个健康的端点胜出。
// 一轮全部失败后按退避间隔重试。
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/weisyn/shopflow/client/core/chainerr"
	"github.com/weisyn/shopflow/pkg/interfaces/infrastructure/log"
)

// ErrChainIDMismatch 节点链ID与配置不符
var ErrChainIDMismatch = errors.New("chain id mismatch")

// ClientConfig 客户端配置
type ClientConfig struct {
	// 节点端点(按优先级排序)
	Endpoints []EndpointConfig `json:"endpoints"`

	// ChainID 期望的链ID，为 nil 时不校验
	ChainID *big.Int `json:"chain_id,omitempty"`

	// 超时配置
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryBackoff  time.Duration `json:"retry_backoff"`
}

// EndpointConfig 端点配置
type EndpointConfig struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"` // 优先级,数字越小越优先
	URL      string `json:"url"`      // http(s):// 或 ws(s)://
}

// Connection 已通过探活的连接
type Connection struct {
	Client   *ethclient.Client
	Endpoint EndpointConfig
	ChainID  *big.Int
}

// Close 关闭连接
func (c *Connection) Close() {
	if c != nil && c.Client != nil {
		c.Client.Close()
	}
}

// withDefaults 补齐默认值
func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return cfg
}

// Dial 按优先级连接第一个健康的端点
//
// 所有端点在所有重试轮次中都失败时返回 chainerr.ErrLedgerUnavailable。
func Dial(ctx context.Context, cfg ClientConfig, logger log.Logger) (*Connection, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", chainerr.ErrLedgerUnavailable)
	}
	cfg = cfg.withDefaults()

	endpoints := append([]EndpointConfig(nil), cfg.Endpoints...)
	sort.SliceStable(endpoints, func(i, j int) bool {
		return endpoints[i].Priority < endpoints[j].Priority
	})

	var lastErr error
	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		for _, ep := range endpoints {
			if ep.URL == "" {
				continue
			}

			conn, err := dialEndpoint(ctx, ep, cfg)
			if err == nil {
				logger.Infof("connected to %s (%s), chain id %s", ep.Name, ep.URL, conn.ChainID)
				return conn, nil
			}
			lastErr = err
			logger.Warnf("endpoint %s unavailable: %v", ep.Name, err)

			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", chainerr.ErrLedgerUnavailable, ctx.Err())
			}
		}

		// 退避重试
		if attempt < cfg.RetryAttempts-1 {
			select {
			case <-time.After(cfg.RetryBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", chainerr.ErrLedgerUnavailable, ctx.Err())
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no endpoint has a url")
	}
	return nil, fmt.Errorf("%w: all endpoints failed: %w", chainerr.ErrLedgerUnavailable, lastErr)
}

func dialEndpoint(ctx context.Context, ep EndpointConfig, cfg ClientConfig) (*Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, ep.URL)
	if err != nil {
		return nil, err
	}
	client := ethclient.NewClient(rpcClient)

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if cfg.ChainID != nil && cfg.ChainID.Cmp(chainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("%w: want %s, got %s", ErrChainIDMismatch, cfg.ChainID, chainID)
	}

	return &Connection{Client: client, Endpoint: ep, ChainID: chainID}, nil
}

// Package config provides profile management for the shop client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/weisyn/shopflow/client/core/transport"
	"github.com/weisyn/shopflow/pkg/types"
)

// 环境变量覆盖
const (
	EnvRPCURL             = "SHOP_RPC_URL"
	EnvMarketplaceAddress = "SHOP_MARKETPLACE_ADDRESS"
	EnvTokenAddress       = "SHOP_TOKEN_ADDRESS"
	EnvPrivateKey         = "SHOP_PRIVATE_KEY"
	EnvKeystorePassword   = "SHOP_KEYSTORE_PASSWORD"
)

// DefaultContentGateway 默认内容网关
const DefaultContentGateway = "https://ipfs.io/ipfs/"

// ErrInvalidProfile 配置不完整或格式错误
var ErrInvalidProfile = errors.New("invalid profile")

// Profile 客户端配置Profile
type Profile struct {
	Name    string `json:"name"`     // Profile名称: local/testnet/mainnet
	ChainID uint64 `json:"chain_id"` // 链ID，0 表示不校验

	// 节点端点(按优先级排序)
	Endpoints []EndpointConfig `json:"endpoints"`

	// 合约地址
	MarketplaceAddress string `json:"marketplace_address"`
	TokenAddress       string `json:"token_address"`

	// 购买参数
	Referrer       string `json:"referrer,omitempty"`        // 推荐人，空为零地址
	ContentGateway string `json:"content_gateway,omitempty"` // 商品内容网关

	// 本地路径
	KeystorePath string `json:"keystore_path,omitempty"` // keystore 文件

	// 网络配置
	Timeout        Duration `json:"timeout"`         // 请求超时
	RetryAttempts  int      `json:"retry_attempts"`  // 重试次数
	RetryBackoff   Duration `json:"retry_backoff"`   // 退避时间
	ConfirmTimeout Duration `json:"confirm_timeout"` // 等待交易确认的上限

	// 日志
	Log *types.UserLogConfig `json:"log,omitempty"`
}

// EndpointConfig 端点配置
type EndpointConfig struct {
	Name     string `json:"name"`     // 端点名称
	Priority int    `json:"priority"` // 优先级(数字越小越优先)
	URL      string `json:"url"`      // JSON-RPC 或 WebSocket 地址
}

// Duration 时间duration(支持JSON序列化)
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)
	return nil
}

// applyDefaults 填充默认网络配置
func (p *Profile) applyDefaults() {
	if p.Timeout == 0 {
		p.Timeout = Duration(10 * time.Second)
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = Duration(time.Second)
	}
	if p.ConfirmTimeout == 0 {
		p.ConfirmTimeout = Duration(2 * time.Minute)
	}
	if p.ContentGateway == "" {
		p.ContentGateway = DefaultContentGateway
	}
}

// ApplyEnv 用环境变量覆盖端点和合约地址
func (p *Profile) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvRPCURL); ok && v != "" {
		p.Endpoints = []EndpointConfig{{Name: "env", Priority: 0, URL: v}}
	}
	if v, ok := lookup(EnvMarketplaceAddress); ok && v != "" {
		p.MarketplaceAddress = v
	}
	if v, ok := lookup(EnvTokenAddress); ok && v != "" {
		p.TokenAddress = v
	}
}

// Validate 检查必填项
func (p *Profile) Validate() error {
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("%w: no endpoints", ErrInvalidProfile)
	}
	for _, ep := range p.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("%w: endpoint %q has no url", ErrInvalidProfile, ep.Name)
		}
	}
	if !common.IsHexAddress(p.MarketplaceAddress) {
		return fmt.Errorf("%w: marketplace address %q", ErrInvalidProfile, p.MarketplaceAddress)
	}
	if !common.IsHexAddress(p.TokenAddress) {
		return fmt.Errorf("%w: token address %q", ErrInvalidProfile, p.TokenAddress)
	}
	if p.Referrer != "" && !common.IsHexAddress(p.Referrer) {
		return fmt.Errorf("%w: referrer %q", ErrInvalidProfile, p.Referrer)
	}
	return nil
}

// Marketplace 商城合约地址
func (p *Profile) Marketplace() common.Address {
	return common.HexToAddress(p.MarketplaceAddress)
}

// Token 代币合约地址
func (p *Profile) Token() common.Address {
	return common.HexToAddress(p.TokenAddress)
}

// ReferrerAddress 推荐人地址，未配置时为零地址
func (p *Profile) ReferrerAddress() common.Address {
	if p.Referrer == "" {
		return common.Address{}
	}
	return common.HexToAddress(p.Referrer)
}

// ChainIDBig 链ID，未配置时为 nil
func (p *Profile) ChainIDBig() *big.Int {
	if p.ChainID == 0 {
		return nil
	}
	return new(big.Int).SetUint64(p.ChainID)
}

// ClientConfig 转换为传输层配置
func (p *Profile) ClientConfig() transport.ClientConfig {
	endpoints := make([]transport.EndpointConfig, 0, len(p.Endpoints))
	for _, ep := range p.Endpoints {
		endpoints = append(endpoints, transport.EndpointConfig{
			Name:     ep.Name,
			Priority: ep.Priority,
			URL:      ep.URL,
		})
	}
	return transport.ClientConfig{
		Endpoints:     endpoints,
		ChainID:       p.ChainIDBig(),
		Timeout:       time.Duration(p.Timeout),
		RetryAttempts: p.RetryAttempts,
		RetryBackoff:  time.Duration(p.RetryBackoff),
	}
}

// ProfileManager Profile管理器
type ProfileManager struct {
	configDir      string
	currentProfile string
	profiles       map[string]*Profile
}

// NewProfileManager 创建Profile管理器，configDir 为空时使用 ~/.shop
func NewProfileManager(configDir string) (*ProfileManager, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		configDir = filepath.Join(homeDir, ".shop")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	pm := &ProfileManager{
		configDir: configDir,
		profiles:  make(map[string]*Profile),
	}

	if err := pm.loadProfiles(); err != nil {
		return nil, err
	}

	if err := pm.loadCurrentProfile(); err != nil {
		pm.currentProfile = "local"
	}

	return pm, nil
}

// ConfigDir 配置目录
func (pm *ProfileManager) ConfigDir() string {
	return pm.configDir
}

// loadProfiles 加载所有profiles，目录不存在时写入默认profile
func (pm *ProfileManager) loadProfiles() error {
	profilesDir := filepath.Join(pm.configDir, "profiles")

	if _, err := os.Stat(profilesDir); os.IsNotExist(err) {
		if err := os.MkdirAll(profilesDir, 0700); err != nil {
			return fmt.Errorf("create profiles dir: %w", err)
		}
		if err := pm.createDefaultProfiles(); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return fmt.Errorf("read profiles dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		profile, err := LoadProfileFile(filepath.Join(profilesDir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load profile %s: %v\n", entry.Name(), err)
			continue
		}
		pm.profiles[profile.Name] = profile
	}

	return nil
}

// LoadProfileFile 读取单个profile文件并填充默认值
func LoadProfileFile(filePath string) (*Profile, error) {
	//nolint:gosec // G304: 路径来自配置目录或命令行
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	profile.applyDefaults()
	return &profile, nil
}

func (pm *ProfileManager) loadCurrentProfile() error {
	//nolint:gosec // G304: 来自配置目录
	data, err := os.ReadFile(filepath.Join(pm.configDir, "current"))
	if err != nil {
		return err
	}

	pm.currentProfile = strings.TrimSpace(string(data))
	return nil
}

func (pm *ProfileManager) saveCurrentProfile() error {
	return os.WriteFile(filepath.Join(pm.configDir, "current"), []byte(pm.currentProfile), 0600)
}

// createDefaultProfiles 写入本地开发链的默认profile
func (pm *ProfileManager) createDefaultProfiles() error {
	local := &Profile{
		Name:    "local",
		ChainID: 31337,
		Endpoints: []EndpointConfig{
			{Name: "local-node", Priority: 1, URL: "http://127.0.0.1:8545"},
			{Name: "local-ws", Priority: 2, URL: "ws://127.0.0.1:8545"},
		},
		MarketplaceAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TokenAddress:       "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
	}
	local.applyDefaults()

	if err := pm.SaveProfile(local); err != nil {
		return err
	}

	pm.currentProfile = local.Name
	return pm.saveCurrentProfile()
}

// GetProfile 获取指定profile
func (pm *ProfileManager) GetProfile(name string) (*Profile, error) {
	profile, exists := pm.profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile not found: %s", name)
	}
	return profile, nil
}

// GetCurrentProfile 获取当前profile
func (pm *ProfileManager) GetCurrentProfile() (*Profile, error) {
	return pm.GetProfile(pm.currentProfile)
}

// ListProfiles 列出所有profiles（按名称排序）
func (pm *ProfileManager) ListProfiles() []string {
	names := make([]string, 0, len(pm.profiles))
	for name := range pm.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveProfile 保存profile
func (pm *ProfileManager) SaveProfile(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProfile)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	profilePath := filepath.Join(pm.configDir, "profiles", profile.Name+".json")
	if err := os.WriteFile(profilePath, data, 0600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	pm.profiles[profile.Name] = profile
	return nil
}

// SwitchProfile 切换profile
func (pm *ProfileManager) SwitchProfile(name string) error {
	if _, exists := pm.profiles[name]; !exists {
		return fmt.Errorf("profile not found: %s", name)
	}

	pm.currentProfile = name
	return pm.saveCurrentProfile()
}

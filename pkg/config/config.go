package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/betbot/kistrade/pkg/logger"
	"github.com/betbot/kistrade/pkg/ratelimit"
)

const (
	// DefaultConfigPath 默认配置文件路径
	DefaultConfigPath = "~/.kis-trading/config.ini"
	// DefaultTokenPath 令牌槽位：每个用户一个，不区分账户
	DefaultTokenPath = "~/.kis-trading/token.json"
	// DefaultSecretDBPath badger 令牌存储目录
	DefaultSecretDBPath = "~/.kis-trading/secrets.badger"

	LiveBaseURL  = "https://openapi.koreainvestment.com:9443"
	PaperBaseURL = "https://openapivts.koreainvestment.com:29443"

	// DefaultProductCode 账户号不足 10 位时使用的商品代码占位值
	DefaultProductCode = "01"

	DefaultTimeout = 10 * time.Second

	TokenStoreFile   = "file"
	TokenStoreBadger = "badger"

	iniSection = "KIS"
	envPrefix  = "KIS_"
)

var (
	// ErrConfigNotFound 配置文件不存在
	ErrConfigNotFound = errors.New("config: file not found")
	// ErrConfigInvalid 必填项缺失或取值非法
	ErrConfigInvalid = errors.New("config: invalid")
)

// ValidationError 配置校验失败，errors.Is(err, ErrConfigInvalid) 为 true
type ValidationError struct {
	Path    string
	Missing []string // 缺失的必填项
	Reason  string   // 其他原因（例如缺少 [KIS] 段、时长格式错误）
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return fmt.Sprintf("config: invalid %s: %s", e.Path, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// Config 券商凭证与账户信息，每次进程运行时构造一次，之后只读
type Config struct {
	AppKey      string
	AppSecret   string
	AccountNo   string // 8 位账户号
	ProductCode string // 2 位商品代码
	BaseURL     string

	// ProductCodeDefaulted 原始账户号不足 10 位，商品代码取了占位值（可能是输入错误）
	ProductCodeDefaulted bool

	TokenPath    string        // 令牌槽位文件
	TokenStore   string        // file | badger
	SecretDBPath string        // badger 目录
	SecretKey    string        // badger 加密密钥（hex/base64，32 字节）
	Timeout      time.Duration // 单次网络调用超时
	MinInterval  time.Duration // 两次调用最小间隔
	LogLevel     string
	LogFile      string

	Path string // 实际加载的配置文件
}

// ConfigFile YAML 配置文件结构。INI 文件使用同名键（大小写不敏感）。
type ConfigFile struct {
	AppKey      string `yaml:"app_key"`
	AppSecret   string `yaml:"app_secret"`
	AccountNo   string `yaml:"account_no"`
	BaseURL     string `yaml:"base_url"`
	TokenPath   string `yaml:"token_path"`
	TokenStore  string `yaml:"token_store"`
	SecretDB    string `yaml:"secret_db"`
	SecretKey   string `yaml:"secret_key"`
	Timeout     string `yaml:"timeout"`
	MinInterval string `yaml:"min_interval"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

func (cf *ConfigFile) values() map[string]string {
	return map[string]string{
		"app_key":      cf.AppKey,
		"app_secret":   cf.AppSecret,
		"account_no":   cf.AccountNo,
		"base_url":     cf.BaseURL,
		"token_path":   cf.TokenPath,
		"token_store":  cf.TokenStore,
		"secret_db":    cf.SecretDB,
		"secret_key":   cf.SecretKey,
		"timeout":      cf.Timeout,
		"min_interval": cf.MinInterval,
		"log_level":    cf.LogLevel,
		"log_file":     cf.LogFile,
	}
}

var knownKeys = []string{
	"app_key", "app_secret", "account_no", "base_url",
	"token_path", "token_store", "secret_db", "secret_key",
	"timeout", "min_interval", "log_level", "log_file",
}

var requiredKeys = []string{"app_key", "app_secret", "account_no"}

// Load 加载并校验配置
// 优先级：进程环境变量 > 配置文件同目录的 .env > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrConfigNotFound, expanded)
		}
		return nil, errors.Wrapf(err, "config: stat %s", expanded)
	}
	if info.IsDir() {
		return nil, &ValidationError{Path: expanded, Reason: "path is a directory"}
	}

	fileValues, err := loadConfigFile(expanded)
	if err != nil {
		return nil, err
	}

	dotenv := loadDotEnv(filepath.Join(filepath.Dir(expanded), ".env"))
	values := mergeSources(fileValues, dotenv)

	cfg, err := build(expanded, values)
	if err != nil {
		return nil, err
	}
	if cfg.ProductCodeDefaulted {
		logger.Warnf("[config] 账户号 %q 不足 10 位，商品代码使用占位值 %s，请确认 ACCOUNT_NO 是否完整",
			values["account_no"], DefaultProductCode)
	}
	return cfg, nil
}

// loadConfigFile 按扩展名选择格式：.yaml/.yml 为 YAML，其余按 INI（config.ini）
func loadConfigFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
		var cf ConfigFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return nil, &ValidationError{Path: path, Reason: "yaml: " + err.Error()}
		}
		return cf.values(), nil
	default:
		f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
		if err != nil {
			return nil, &ValidationError{Path: path, Reason: "ini: " + err.Error()}
		}
		sec, err := f.GetSection(iniSection)
		if err != nil {
			return nil, &ValidationError{Path: path, Reason: "missing [KIS] section"}
		}
		out := make(map[string]string, len(knownKeys))
		for _, k := range knownKeys {
			if sec.HasKey(k) {
				out[k] = sec.Key(k).String()
			}
		}
		return out, nil
	}
}

// loadDotEnv 读取 .env（不修改进程环境），文件不存在时返回 nil
func loadDotEnv(path string) map[string]string {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		logger.Warnf("[config] 忽略无法解析的 %s: %v", path, err)
		return nil
	}
	return env
}

func mergeSources(fileValues, dotenv map[string]string) map[string]string {
	out := make(map[string]string, len(knownKeys))
	for _, k := range knownKeys {
		envKey := envPrefix + strings.ToUpper(k)
		switch {
		case strings.TrimSpace(os.Getenv(envKey)) != "":
			out[k] = os.Getenv(envKey)
		case strings.TrimSpace(dotenv[envKey]) != "":
			out[k] = dotenv[envKey]
		default:
			out[k] = fileValues[k]
		}
		out[k] = strings.TrimSpace(out[k])
	}
	return out
}

func build(path string, values map[string]string) (*Config, error) {
	var missing []string
	for _, k := range requiredKeys {
		if values[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Path: path, Missing: missing}
	}

	accountNo, productCode, defaulted := SplitAccount(values["account_no"])
	if accountNo == "" {
		return nil, &ValidationError{Path: path, Reason: "account_no has no digits"}
	}

	timeout, err := parseDuration(values["timeout"], time.Second, DefaultTimeout)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "timeout: " + err.Error()}
	}
	minInterval, err := parseDuration(values["min_interval"], time.Millisecond, ratelimit.DefaultMinInterval)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "min_interval: " + err.Error()}
	}

	tokenStore := strings.ToLower(getOrDefault(values["token_store"], TokenStoreFile))
	if tokenStore != TokenStoreFile && tokenStore != TokenStoreBadger {
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("token_store must be %q or %q", TokenStoreFile, TokenStoreBadger)}
	}

	tokenPath, err := ExpandPath(getOrDefault(values["token_path"], DefaultTokenPath))
	if err != nil {
		return nil, err
	}
	secretDB, err := ExpandPath(getOrDefault(values["secret_db"], DefaultSecretDBPath))
	if err != nil {
		return nil, err
	}

	return &Config{
		AppKey:               values["app_key"],
		AppSecret:            values["app_secret"],
		AccountNo:            accountNo,
		ProductCode:          productCode,
		BaseURL:              strings.TrimRight(getOrDefault(values["base_url"], LiveBaseURL), "/"),
		ProductCodeDefaulted: defaulted,
		TokenPath:            tokenPath,
		TokenStore:           tokenStore,
		SecretDBPath:         secretDB,
		SecretKey:            values["secret_key"],
		Timeout:              timeout,
		MinInterval:          minInterval,
		LogLevel:             getOrDefault(values["log_level"], "warn"),
		LogFile:              values["log_file"],
		Path:                 path,
	}, nil
}

// SplitAccount 去掉分隔符后拆分为 8 位账户号 + 2 位商品代码。
// 不足 10 位时商品代码取 DefaultProductCode，第三个返回值为 true。
func SplitAccount(raw string) (accountNo, productCode string, defaulted bool) {
	// 只保留 ASCII 字母数字，之后按字节切分不会截断多字节字符
	acct := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, raw)

	if len(acct) > 8 {
		accountNo = acct[:8]
	} else {
		accountNo = acct
	}
	if len(acct) >= 10 {
		return accountNo, acct[8:10], false
	}
	return accountNo, DefaultProductCode, true
}

// ExpandPath 展开 ~/ 开头的路径
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "config: resolve home dir")
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// SetupGuidance 配置文件缺失时给用户的提示
func SetupGuidance(path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "config file not found: %s\n", path)
	b.WriteString("create it with:\n")
	b.WriteString("  mkdir -p ~/.kis-trading\n")
	b.WriteString("  cat > ~/.kis-trading/config.ini <<EOF\n")
	b.WriteString("  [KIS]\n")
	b.WriteString("  APP_KEY = <app key>\n")
	b.WriteString("  APP_SECRET = <app secret>\n")
	b.WriteString("  ACCOUNT_NO = 12345678-01\n")
	fmt.Fprintf(&b, "  BASE_URL = %s\n", LiveBaseURL)
	b.WriteString("  EOF\n")
	fmt.Fprintf(&b, "(paper trading: BASE_URL = %s)\n", PaperBaseURL)
	return b.String()
}

// AccountLabel 形如 12345678-01
func (c *Config) AccountLabel() string {
	return c.AccountNo + "-" + c.ProductCode
}

// parseDuration 支持 "10s" 这类写法；纯数字按 unit 解释；空串返回默认值
func parseDuration(raw string, unit time.Duration, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("must be positive, got %s", raw)
		}
		return d, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return time.Duration(n) * unit, nil
}

func getOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

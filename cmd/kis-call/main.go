package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/betbot/kistrade/internal/metrics"
	"github.com/betbot/kistrade/kis/client"
	"github.com/betbot/kistrade/pkg/config"
	"github.com/betbot/kistrade/pkg/logger"
)

// 退出码
const (
	exitOK          = 0
	exitUsage       = 1
	exitTransport   = 2
	exitAuthFailed  = 3
	exitAuthExpired = 4
	exitBusiness    = 5
)

// paramFlags 可重复的 -param k=v
type paramFlags map[string]string

func (p paramFlags) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("param must be key=value, got %q", s)
	}
	p[strings.TrimSpace(k)] = v
	return nil
}

func main() {
	params := paramFlags{}
	var (
		configPath = flag.String("config", getenv("KIS_CONFIG", config.DefaultConfigPath), "config file (.ini or .yaml)")
		method     = flag.String("method", "GET", "GET or POST")
		path       = flag.String("path", "", "API path, e.g. /uapi/domestic-stock/v1/quotations/inquire-price")
		trID       = flag.String("tr", "", "logical TR id (live id; mapped automatically in paper mode)")
		body       = flag.String("body", "", "POST body (JSON); @file reads from a file")
		useHashKey = flag.Bool("hashkey", false, "request a hash key for the POST body")
		paginate   = flag.Bool("paginate", false, "follow CTX_AREA_FK100/NK100 continuation (GET only)")
		itemsKey   = flag.String("items", client.DefaultItemsKey, "array field collected when paginating")
		logLevel   = flag.String("log-level", "", "log level (overrides config)")
		dumpMetric = flag.Bool("metrics", false, "print prometheus metrics to stderr after the call")
	)
	flag.Var(params, "param", "query parameter key=value (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*path) == "" || strings.TrimSpace(*trID) == "" {
		fmt.Fprintln(os.Stderr, "error: -path and -tr are required")
		flag.Usage()
		os.Exit(exitUsage)
	}
	m := strings.ToUpper(strings.TrimSpace(*method))
	if m != "GET" && m != "POST" {
		fatal(exitUsage, fmt.Errorf("unsupported method %q", *method))
	}
	if *paginate && m != "GET" {
		fatal(exitUsage, errors.New("-paginate only applies to GET"))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			p, _ := config.ExpandPath(*configPath)
			fmt.Fprint(os.Stderr, config.SetupGuidance(p))
			os.Exit(exitUsage)
		}
		fatal(exitUsage, err)
	}
	initLogger(cfg, *logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg)
	if err != nil {
		fatal(exitUsage, err)
	}

	code := run(ctx, c, m, *path, *trID, params, *body, *useHashKey, *paginate, *itemsKey)
	_ = c.Close()
	if *dumpMetric {
		_ = metrics.WriteText(os.Stderr)
	}
	stop()
	os.Exit(code)
}

func run(ctx context.Context, c *client.Client, method, path, trID string, params map[string]string,
	body string, useHashKey, paginate bool, itemsKey string) int {
	switch {
	case paginate:
		items, err := c.FetchAll(ctx, "", path, trID, params, itemsKey)
		if items != nil || err == nil {
			if items == nil {
				items = []json.RawMessage{}
			}
			out, merr := json.MarshalIndent(items, "", "  ")
			if merr != nil {
				return report(merr)
			}
			fmt.Println(string(out))
		}
		return report(err)
	case method == "POST":
		payload, err := readBody(body)
		if err != nil {
			return report(err)
		}
		env, err := c.Post(ctx, "", path, trID, payload, useHashKey)
		if err != nil {
			return report(err)
		}
		printJSON(env.Body)
		return exitOK
	default:
		env, err := c.Get(ctx, "", path, trID, params)
		if err != nil {
			return report(err)
		}
		printJSON(env.Body)
		return exitOK
	}
}

// readBody 支持内联 JSON 或 @file
func readBody(body string) (json.RawMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return json.RawMessage("{}"), nil
	}
	data := []byte(body)
	if strings.HasPrefix(body, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return nil, err
		}
		data = b
	}
	if !json.Valid(data) {
		return nil, errors.New("-body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(raw []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

// report 打印错误并映射为退出码
func report(err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err.Error())

	var biz *client.BusinessError
	switch {
	case errors.As(err, &biz):
		return exitBusiness
	case errors.Is(err, client.ErrAuthExpired):
		return exitAuthExpired
	case errors.Is(err, client.ErrAuthFailed):
		return exitAuthFailed
	case errors.Is(err, client.ErrTransport):
		return exitTransport
	default:
		return exitUsage
	}
}

func initLogger(cfg *config.Config, level string) {
	if strings.TrimSpace(level) == "" {
		level = cfg.LogLevel
	}
	if err := logger.Init(logger.Config{
		Level:      level,
		OutputFile: cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "warning: log init:", err)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(code int, err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(code)
}

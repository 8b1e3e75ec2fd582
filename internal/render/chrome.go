package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/rs/zerolog/log"
)

// Options configures the Chrome driver
type Options struct {
	Headless    bool
	UserAgent   string
	Proxy       string
	ChromePath  string
	MaxSessions int

	// AcquireTimeout bounds the wait for a free session slot
	AcquireTimeout time.Duration
	// ReadTimeout bounds each element query and read
	ReadTimeout time.Duration
}

// ChromeDriver launches one browser process per session and limits how many
// run at once.
type ChromeDriver struct {
	opts   Options
	slots  chan struct{}
	active atomic.Int64
}

// NewChromeDriver creates a driver. No browser starts until WithSession.
func NewChromeDriver(opts Options) *ChromeDriver {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 2
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = time.Minute
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.ChromePath == "" {
		opts.ChromePath = FindChrome()
	}
	return &ChromeDriver{
		opts:  opts,
		slots: make(chan struct{}, opts.MaxSessions),
	}
}

// Active returns the number of sessions currently open
func (d *ChromeDriver) Active() int64 {
	return d.active.Load()
}

// WithSession runs fn against a fresh browser and tears it down afterwards
func (d *ChromeDriver) WithSession(ctx context.Context, fn func(Session) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(d.opts.AcquireTimeout)
	defer timer.Stop()
	select {
	case d.slots <- struct{}{}:
	case <-timer.C:
		return fault.Render(fault.KindSessionFailure, "timeout waiting for a free browser session", nil)
	case <-ctx.Done():
		return fault.FromContext(fault.DomainRender, ctx.Err())
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	d.active.Add(1)
	start := time.Now()

	defer func() {
		browserCancel()
		allocCancel()
		d.active.Add(-1)
		<-d.slots
		log.Debug().Dur("lifetime", time.Since(start)).Msg("Browser session closed")
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fault.Render(fault.KindSessionFailure, fmt.Sprintf("session panicked: %v", r), nil)
		}
	}()

	// Start the browser with the session context so later per-call timeouts
	// do not take the process down with them.
	if err := chromedp.Run(browserCtx); err != nil {
		if ctx.Err() != nil {
			return fault.FromContext(fault.DomainRender, ctx.Err())
		}
		return fault.Render(fault.KindSessionFailure, "failed to start browser", err)
	}
	log.Debug().Dur("startup", time.Since(start)).Msg("Browser session started")

	return fn(&chromeSession{ctx: browserCtx, readTimeout: d.opts.ReadTimeout})
}

func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("disk-cache-size", "0"),
	}
	if d.opts.ChromePath != "" {
		opts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(d.opts.ChromePath)}, opts...)
	}
	if d.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.opts.UserAgent))
	}
	if d.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if d.opts.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(d.opts.Proxy))
	}
	return opts
}

// FindChrome locates a Chrome or Chromium executable, or returns ""
func FindChrome() string {
	for _, env := range []string{"HARVEST_CHROME_PATH", "CHROME_PATH"} {
		if path := os.Getenv(env); path != "" {
			if isExecutable(path) {
				return path
			}
			log.Warn().Str("path", path).Str("env", env).Msg("Chrome path set but not executable")
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	case "windows":
		for _, base := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if base != "" {
				candidates = append(candidates,
					filepath.Join(base, "Google\\Chrome\\Application\\chrome.exe"),
					filepath.Join(base, "Chromium\\Application\\chrome.exe"),
					filepath.Join(base, "Microsoft\\Edge\\Application\\msedge.exe"),
				)
			}
		}
	case "linux":
		candidates = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
		}
	}

	for _, path := range candidates {
		if isExecutable(path) {
			return path
		}
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

var _ Driver = (*ChromeDriver)(nil)

package main

import (
	"context"
	"embed"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/dragstrip/internal/config"
	"github.com/MJE43/dragstrip/internal/desktop"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	repoURL  = "https://github.com/MJE43/dragstrip"
	logoPath = "frontend/dist/assets/logo.png"
)

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex
)

func buildWindowsOptions() *windows.Options {
	return &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.SystemDefault,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:   windows.RGB(18, 18, 24),
			DarkModeTitleText:  windows.RGB(240, 240, 240),
			DarkModeBorder:     windows.RGB(60, 60, 72),
			LightModeTitleBar:  windows.RGB(245, 245, 245),
			LightModeTitleText: windows.RGB(20, 20, 20),
			LightModeBorder:    windows.RGB(220, 220, 220),
		},
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,
		WindowClassName:      "DragstripWindow",
	}
}

func appIcon() []byte {
	icon, err := assets.ReadFile(logoPath)
	if err != nil {
		log.Printf("app icon unavailable: %v", err)
		return nil
	}
	return icon
}

func buildMacOptions(icon []byte) *mac.Options {
	return &mac.Options{
		TitleBar: mac.TitleBarDefault(),
		About: &mac.AboutInfo{
			Title:   "Dragstrip",
			Message: "Side-scrolling drag racing.\n\nBuilt with Wails",
			Icon:    icon,
		},
	}
}

func buildLinuxOptions(icon []byte) *linux.Options {
	return &linux.Options{
		Icon:             icon,
		WebviewGpuPolicy: linux.WebviewGpuPolicyAlways,
		ProgramName:      "dragstrip",
	}
}

func main() {
	log.Printf("Starting Dragstrip (Go %s)...", runtime.Version())

	cfgPath := config.DefaultPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Printf("config load failed path=%s err=%v; using defaults", cfgPath, err)
		cfg = config.Default()
	}
	if addr, ok := os.LookupEnv("DRAGSTRIP_HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}

	icon := appIcon()
	app := desktop.New(cfg, desktop.WithLogger(log.New(os.Stdout, "[desktop] ", log.LstdFlags)))

	startup := func(ctx context.Context) {
		setAppContext(ctx)
		if err := app.Startup(ctx); err != nil {
			log.Printf("startup failed: %v", err)
			return
		}
		if info := app.APIInfo(); info.URL != "" {
			log.Printf("Local API ready at %s (token enabled: %v)", info.URL, info.TokenEnabled)
		}
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		if err := app.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		setAppContext(nil)
		return false
	}

	if err := wails.Run(&options.App{
		Title:            "Dragstrip",
		Width:            1280,
		Height:           720,
		MinWidth:         960,
		MinHeight:        540,
		WindowStartState: options.Normal,
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 24, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:     startup,
		OnBeforeClose: beforeClose,

		Menu: buildAppMenu(cfg.DataDir),
		Bind: []interface{}{app},

		LogLevel:           logger.INFO,
		LogLevelProduction: logger.ERROR,

		EnableDefaultContextMenu: false,
		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "5e0c1b7a-dragstrip",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				log.Printf("Second instance launch prevented. Args: %v", data.Args)
			},
		},
		DragAndDrop: &options.DragAndDrop{
			DisableWebViewDrop: true,
		},

		Windows: buildWindowsOptions(),
		Mac:     buildMacOptions(icon),
		Linux:   buildLinuxOptions(icon),
	}); err != nil {
		log.Fatalf("Error running Wails app: %v", err)
	}
}

func buildAppMenu(dataDir string) *menu.Menu {
	rootMenu := menu.NewMenu()
	if runtime.GOOS == "darwin" {
		rootMenu.Append(menu.AppMenu())
	}

	fileMenu := menu.NewMenu()
	fileMenu.AddText("Open Data Directory", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			openPathInExplorer(ctx, dataDir)
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(wruntime.Quit)
	})
	rootMenu.Append(menu.SubMenu("File", fileMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(wruntime.WindowReloadApp)
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Key("F11"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			if wruntime.WindowIsFullscreen(ctx) {
				wruntime.WindowUnfullscreen(ctx)
				return
			}
			wruntime.WindowFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	helpMenu := menu.NewMenu()
	helpMenu.AddText("Project Repository", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, repoURL)
		})
	})
	rootMenu.Append(menu.SubMenu("Help", helpMenu))

	return rootMenu
}

func openPathInExplorer(ctx context.Context, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	clean := filepath.ToSlash(abs)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}
	wruntime.BrowserOpenURL(ctx, (&url.URL{Scheme: "file", Path: clean}).String())
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		log.Println("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}

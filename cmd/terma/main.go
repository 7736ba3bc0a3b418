// Terma is a multi-session PTY terminal server: a REST/WebSocket API, a
// built-in xterm.js UI, and an MCP tool surface, all backed by the same
// session registry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terma-io/terma/src/api"
	"github.com/terma-io/terma/src/config"
	"github.com/terma-io/terma/src/llmadapter"
	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/mcp"
	"github.com/terma-io/terma/src/registry/hermesclient"
	"github.com/terma-io/terma/src/terminal"
	"github.com/terma-io/terma/src/uiserver"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found")
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "terma",
		Short:   "Multi-session PTY terminal server",
		Version: version,
	}

	root.AddCommand(
		serverCmd(),
		createSessionCmd(),
		listSessionsCmd(),
		closeSessionCmd(),
		uiCmd(),
	)
	return root
}

// flagsToViper lifts the cobra flags this CLI cares about into a Viper
// instance so config.Load can merge them in last (CLI flags win over
// everything else).
func flagsToViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	if host, err := cmd.Flags().GetString("host"); err == nil && cmd.Flags().Changed("host") {
		v.Set("server.host", host)
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil && cmd.Flags().Changed("port") {
		v.Set("server.port", port)
	}
	if uiPort, err := cmd.Flags().GetInt("ui-port"); err == nil && cmd.Flags().Changed("ui-port") {
		v.Set("server.ui_port", uiPort)
	}
	if noUI, err := cmd.Flags().GetBool("no-ui"); err == nil && cmd.Flags().Changed("no-ui") {
		v.Set("server.no_ui", noUI)
	}
	return v
}

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the Terma REST/WebSocket/MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagsToViper(cmd))
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().String("host", "", "Host to bind (default from config)")
	cmd.Flags().Int("port", 0, "Port to listen on (default from config)")
	cmd.Flags().Int("ui-port", 0, "Port for the built-in terminal UI (default: port+1)")
	cmd.Flags().Bool("no-ui", false, "Disable the built-in terminal UI")
	return cmd
}

func runServer(cfg config.Config) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(cfg.Server.LogrusLevel())

	registry := terminal.NewRegistry(cfg.Registry.CleanupInterval(), cfg.Registry.IdleTimeout())
	registry.Start()
	defer registry.Stop()

	contextStore := llmassist.NewContextStore(cfg.LLM.SystemPrompt)

	var analyzer llmassist.AnalyzerPort
	adapterCfg := llmadapter.DefaultConfig()
	adapterCfg.AdapterURL = cfg.LLM.AdapterURL
	adapterCfg.Provider = cfg.LLM.Provider
	adapterCfg.Model = cfg.LLM.Model
	if cfg.LLM.AdapterWSURL != "" {
		analyzer = llmadapter.NewStreamingAnalyzer(adapterCfg)
	} else {
		analyzer = llmadapter.NewHTTPAnalyzer(adapterCfg)
	}

	hermesCfg := hermesclient.DefaultConfig()
	hermesCfg.BaseURL = cfg.Hermes.URL
	hermesCfg.Enabled = cfg.Hermes.Register && cfg.Hermes.URL != ""
	hermes := hermesclient.New(hermesCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	selfEndpoint := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	hermes.Register(ctx, selfEndpoint)
	go hermes.RunHeartbeat(ctx)

	router := api.SetupRouter(registry, analyzer, contextStore, hermes, false, false)

	mcpServer, err := mcp.NewServer(router, registry, analyzer, contextStore)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if err := mcpServer.Serve(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	if !cfg.Server.NoUI {
		uiPort := cfg.Server.UIPort
		if uiPort == 0 {
			uiPort = cfg.Server.Port + 1
		}
		restBase := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		wsHost := cfg.Server.WSHost
		if wsHost == "" {
			wsHost = cfg.Server.Host
		}
		wsPort := cfg.Server.WSPort
		if wsPort == 0 {
			wsPort = cfg.Server.Port
		}
		wsBase := fmt.Sprintf("ws://%s:%d", wsHost, wsPort)

		ui := uiserver.New(restBase, wsBase)
		uiAddr := fmt.Sprintf("%s:%d", cfg.Server.UIHost, uiPort)
		go func() {
			if err := ui.Run(uiAddr); err != nil {
				logrus.Errorf("ui server exited: %v", err)
			}
		}()
	}

	stopWatch, err := config.WatchReloadable(func(newCfg config.Config) {
		logrus.SetLevel(newCfg.Server.LogrusLevel())
		registry.SetTimeouts(newCfg.Registry.CleanupInterval(), newCfg.Registry.IdleTimeout())
		contextStore.SetSystemPrompt(newCfg.LLM.SystemPrompt)
		logrus.Infof("config reloaded: log level, registry timeouts, and llm.system_prompt applied")
	})
	if err != nil {
		logrus.Warnf("config hot-reload disabled: %v", err)
	} else {
		defer stopWatch()
	}

	errCh := make(chan error, 1)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logrus.Infof("terma server listening on %s", addr)
		errCh <- router.Run(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logrus.Infof("received %s, shutting down", sig)
		return nil
	}
}

// addServerURLFlag wires the --server-url flag every thin REST-client
// subcommand shares, pointed at a server started with 'terma server'.
func addServerURLFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "server-url", "http://localhost:8004", "Base URL of a running terma server")
}

func createSessionCmd() *cobra.Command {
	var shellCommand string
	var serverURL string
	cmd := &cobra.Command{
		Use:   "create-session",
		Short: "Create a new terminal session against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			if shellCommand != "" {
				body["shell_command"] = shellCommand
			}
			payload, _ := json.Marshal(body)

			resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/sessions", "application/json", strings.NewReader(string(payload)))
			if err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
				return fmt.Errorf("server returned %d", resp.StatusCode)
			}

			var out struct {
				SessionID string `json:"session_id"`
				CreatedAt string `json:"created_at"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Printf("created: %s (%s)\n", out.SessionID, out.CreatedAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&shellCommand, "shell-command", "", "Shell command to run in the new session")
	addServerURLFlag(cmd, &serverURL)
	return cmd
}

func listSessionsCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "list-sessions",
		Short: "List sessions on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/sessions")
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %d", resp.StatusCode)
			}

			var out struct {
				Sessions []terminal.Info `json:"sessions"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if len(out.Sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTIVE\tSHELL\tIDLE")
			for _, s := range out.Sessions {
				fmt.Fprintf(w, "%s\t%v\t%s\t%.0fs\n", s.ID, s.Active, s.ShellCommand, s.IdleSeconds)
			}
			w.Flush()
			return nil
		},
	}
	addServerURLFlag(cmd, &serverURL)
	return cmd
}

func closeSessionCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "close-session [id]",
		Short: "Close a session on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, strings.TrimRight(serverURL, "/")+"/api/sessions/"+args[0], nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("close session: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("session not found: %s", args[0])
			}
			if resp.StatusCode != http.StatusOK {
				data, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
			}
			fmt.Printf("closed: %s\n", args[0])
			return nil
		},
	}
	addServerURLFlag(cmd, &serverURL)
	return cmd
}

func uiCmd() *cobra.Command {
	var host string
	var port int
	var restBase string
	var wsBase string
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Run only the built-in terminal UI, pointed at a separate REST/WS server",
		RunE: func(cmd *cobra.Command, args []string) error {
			gin.SetMode(gin.ReleaseMode)
			ui := uiserver.New(restBase, wsBase)
			addr := fmt.Sprintf("%s:%d", host, port)
			return ui.Run(addr)
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host to bind")
	cmd.Flags().IntVar(&port, "port", 8005, "Port to listen on")
	cmd.Flags().StringVar(&restBase, "rest-base", "http://localhost:8004", "REST API base URL the UI talks to")
	cmd.Flags().StringVar(&wsBase, "ws-base", "ws://localhost:8004", "WebSocket base URL the UI talks to")
	return cmd
}

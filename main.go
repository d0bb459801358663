package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chat-studio/llm"
	"ai-chat-studio/session"
	"ai-chat-studio/store"
	"ai-chat-studio/utils"
)

var (
	version = "0.1.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("AI Chat Studio v%s\n", version)
		os.Exit(0)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.GetLogPath())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting AI Chat Studio v%s", version)

	// Load or create default configuration
	actualConfigPath := *configPath
	if actualConfigPath == "" {
		actualConfigPath, err = utils.EnsureDefaultConfig()
		if err != nil {
			logger.Error("Failed to create default config: %v", err)
			os.Exit(1)
		}
		logger.Info("Using config file: %s", actualConfigPath)
	}

	config, err := utils.LoadConfig(actualConfigPath)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Initialize storage; a disabled store is a working no-op store
	st, err := store.New(config.Data.DBPath, config.Features.EnableLocalStorage)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	if config.Features.EnableLocalStorage {
		logger.Info("Database initialized: %s", config.Data.DBPath)

		if config.Data.RetentionDays > 0 {
			removed, err := st.DeleteOldConversations(config.Data.RetentionDays)
			if err != nil {
				logger.Warn("Retention cleanup failed: %v", err)
			} else if removed > 0 {
				logger.Info("Retention cleanup removed %d conversations", removed)
			}
		}
	} else {
		logger.Info("Local storage disabled, running in-memory only")
	}

	// Build the provider gateway
	gateway, err := buildGateway(config, logger)
	if err != nil {
		logger.Error("Failed to initialize providers: %v", err)
		os.Exit(1)
	}

	uploads := utils.NewFileUploadHandler(logger)

	sess := session.New(session.Options{
		Store:            st,
		Gateway:          gateway,
		Uploads:          uploads,
		Logger:           logger,
		AutoSaveInterval: time.Duration(config.Features.AutoSaveIntervalMs) * time.Millisecond,
		UploadsEnabled:   config.Features.EnableFileUpload,
	})
	defer sess.Close()

	if model := defaultModel(config); model != "" {
		sess.SetModel(model)
	}

	logger.Info("Application started")
	runREPL(sess, st, config)
	logger.Info("Application stopped")
}

// buildGateway registers one branch per enabled provider and wires the mock
// fallback with the configured response delay
func buildGateway(config *utils.Config, logger *utils.Logger) (*llm.Gateway, error) {
	mockDelay := time.Duration(config.Features.MockResponseDelayMs) * time.Millisecond
	gateway := llm.NewGateway(config.Features.EnableRealAPI, llm.NewMockProvider(mockDelay))

	for key, pc := range config.LLMProviders {
		if !pc.Enabled {
			continue
		}

		cfg := llm.Config{
			ProviderName: pc.DisplayName,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			Model:        pc.DefaultModel,
			Models:       pc.Models,
		}

		var provider llm.Provider
		var err error
		switch key {
		case "openai":
			provider, err = llm.NewOpenAIProvider(cfg)
		case "claude":
			provider, err = llm.NewClaudeProvider(cfg)
		case "gemini":
			provider, err = llm.NewGeminiProvider(cfg)
		case "ollama":
			provider, err = llm.NewOllamaProvider(cfg)
		default:
			logger.Warn("Unknown provider %q in config, skipping", key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", key, err)
		}

		gateway.Register(key, provider)
		logger.Info("Registered provider %s (%d models)", key, len(pc.Models))
	}

	return gateway, nil
}

// defaultModel picks the default model of the first enabled provider,
// preferring openai
func defaultModel(config *utils.Config) string {
	if pc, ok := config.LLMProviders["openai"]; ok && pc.Enabled && pc.DefaultModel != "" {
		return pc.DefaultModel
	}
	for _, pc := range config.LLMProviders {
		if pc.Enabled && pc.DefaultModel != "" {
			return pc.DefaultModel
		}
	}
	return ""
}

// runREPL reads lines from stdin; plain lines are sent as chat messages,
// lines starting with / are commands.
func runREPL(sess *session.Session, st *store.Store, config *utils.Config) {
	fmt.Printf("AI Chat Studio v%s (model: %s). Type /help for commands.\n", version, sess.Model())

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(sess, st, config, line); quit {
				return
			}
			continue
		}

		resp, err := sess.SendMessage(context.Background(), line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n", resp.Content)
		if sess.Settings().ShowTokenCount {
			fmt.Printf("[%s | %d tokens]\n", resp.Model, resp.TotalTokens)
		}
	}
}

func runCommand(sess *session.Session, st *store.Store, config *utils.Config, line string) bool {
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		printHelp()

	case "/new":
		id := sess.NewConversation()
		fmt.Printf("started conversation %s\n", id)

	case "/list":
		conversations, err := st.ListConversations(20, 0)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, conv := range conversations {
			fmt.Printf("%s  %-40s  %s\n", conv.ID, conv.Title, conv.UpdatedAt.Format("2006-01-02 15:04"))
		}

	case "/load":
		if len(args) < 1 {
			fmt.Println("usage: /load <id>")
			break
		}
		if err := sess.LoadConversation(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("loaded %q (%d messages)\n", sess.Title(), len(sess.Messages()))

	case "/delete":
		if len(args) < 1 {
			fmt.Println("usage: /delete <id>")
			break
		}
		if err := sess.DeleteConversation(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/rename":
		if len(args) < 2 {
			fmt.Println("usage: /rename <id> <title>")
			break
		}
		if err := sess.RenameConversation(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/search":
		if len(args) < 1 {
			fmt.Println("usage: /search <query>")
			break
		}
		results, err := sess.Search(strings.Join(args, " "))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, conv := range results {
			fmt.Printf("%s  %s\n", conv.ID, conv.Title)
		}

	case "/show":
		if len(args) < 2 {
			fmt.Println("usage: /show <id> <json|markdown|text>")
			break
		}
		content, err := sess.Export(args[0], utils.ExportFormat(args[1]))
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Println(content)

	case "/export":
		if len(args) < 2 {
			fmt.Println("usage: /export <id> <json|markdown|text> [file]")
			break
		}
		format := utils.ExportFormat(args[1])
		var path string
		if len(args) >= 3 {
			path = args[2]
		} else {
			var err error
			path, err = defaultExportFile(st, args[0], format)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
		}
		if err := utils.ExportConversationToFile(st, args[0], format, path); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("exported to %s\n", path)

	case "/exportall":
		var path string
		if len(args) >= 1 {
			path = args[0]
		} else {
			dir, err := utils.GetDefaultExportPath()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				break
			}
			path = filepath.Join(dir, utils.GenerateExportFilename("all_conversations", utils.FormatJSON))
		}
		if err := utils.ExportAllConversations(st, path); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("exported to %s\n", path)

	case "/template":
		runTemplateCommand(sess, st, args)

	case "/regen":
		resp, err := sess.RegenerateLastMessage(context.Background())
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("\n%s\n", resp.Content)

	case "/clear":
		sess.ClearMessages()
		fmt.Println("cleared")

	case "/file":
		if len(args) < 1 {
			fmt.Println("usage: /file <path> [path...]")
			break
		}
		for _, pf := range sess.StageFiles(args) {
			fmt.Printf("staged %s (%s)\n", pf.Name, utils.FormatFileSize(pf.Size))
		}

	case "/model":
		if len(args) < 1 {
			fmt.Printf("current model: %s\n", sess.Model())
			break
		}
		sess.SetModel(args[0])
		fmt.Printf("model set to %s\n", args[0])

	case "/params":
		if len(args) == 0 {
			p := sess.Parameters()
			fmt.Printf("temperature=%.2f max_tokens=%d top_p=%.2f frequency_penalty=%.2f presence_penalty=%.2f\n",
				p.Temperature, p.MaxTokens, p.TopP, p.FrequencyPenalty, p.PresencePenalty)
			break
		}
		if err := sess.UpdateParameters(parseParamArgs(args)); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/stats":
		stats, err := st.GetStats()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("conversations=%d messages=%d templates=%d size=%s\n",
			stats.ConversationCount, stats.MessageCount, stats.TemplateCount, utils.FormatFileSize(stats.SizeBytes))

	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}

	return false
}

// defaultExportFile builds a path in the export directory from the
// conversation title and format
func defaultExportFile(st *store.Store, id string, format utils.ExportFormat) (string, error) {
	conv, _, err := st.GetConversation(id)
	if err != nil {
		return "", err
	}
	dir, err := utils.GetDefaultExportPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, utils.GenerateExportFilename(conv.Title, format)), nil
}

func runTemplateCommand(sess *session.Session, st *store.Store, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: /template list | use <id> [k=v ...] | save <name> <body> | delete <id>")
		return
	}

	switch args[0] {
	case "list":
		templates, err := st.ListTemplates("")
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for _, tpl := range templates {
			fmt.Printf("%s  %-30s  used %d times\n", tpl.ID, tpl.Name, tpl.UsageCount)
		}

	case "use":
		if len(args) < 2 {
			fmt.Println("usage: /template use <id> [k=v ...]")
			return
		}
		tpl, err := sess.UseTemplate(args[1])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		body := tpl.Body
		if len(args) > 2 {
			values := map[string]string{}
			for _, arg := range args[2:] {
				if key, value, ok := strings.Cut(arg, "="); ok {
					values[key] = value
				}
			}
			body = session.FillTemplate(body, values)
			sess.SetInput(body)
		}
		fmt.Println(body)

	case "save":
		if len(args) < 3 {
			fmt.Println("usage: /template save <name> <body>")
			return
		}
		tpl := &store.PromptTemplate{
			ID:        uuid.NewString(),
			Name:      args[1],
			Body:      strings.Join(args[2:], " "),
			CreatedAt: time.Now(),
		}
		if err := st.SaveTemplate(tpl); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("saved template %s\n", tpl.ID)

	case "delete":
		if len(args) < 2 {
			fmt.Println("usage: /template delete <id>")
			return
		}
		if err := st.DeleteTemplate(args[1]); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	default:
		fmt.Printf("unknown template subcommand %s\n", args[0])
	}
}

// parseParamArgs turns key=value pairs into a partial parameter update
func parseParamArgs(args []string) llm.ParameterUpdate {
	var update llm.ParameterUpdate
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			continue
		}
		switch key {
		case "temperature":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				update.Temperature = &f
			}
		case "max_tokens":
			if n, err := strconv.Atoi(value); err == nil {
				update.MaxTokens = &n
			}
		case "top_p":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				update.TopP = &f
			}
		case "frequency_penalty":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				update.FrequencyPenalty = &f
			}
		case "presence_penalty":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				update.PresencePenalty = &f
			}
		}
	}
	return update
}

func printHelp() {
	fmt.Println(`Commands:
  /new                      start a new conversation
  /list                     list stored conversations
  /load <id>                load a conversation
  /delete <id>              delete a conversation
  /rename <id> <title>      rename a conversation
  /search <query>           search conversations
  /show <id> <format>       print a conversation (json, markdown, text)
  /export <id> <format> [file]  write a conversation to disk
  /exportall [file]         write all conversations to one JSON file
  /template <subcommand>    list | use <id> [k=v ...] | save <name> <body> | delete <id>
  /regen                    regenerate the last reply
  /clear                    clear the current conversation
  /file <path>...           attach files to the next message
  /model [name]             show or set the model
  /params [k=v ...]         show or set sampling parameters
  /stats                    storage statistics
  /quit                     exit`)
}

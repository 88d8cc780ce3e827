package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"smartpdf-web/internal/config"
	"smartpdf-web/internal/flow"
	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/lifecycle"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/session"

	"github.com/fatih/color"
)

const releaseGrace = 3 * time.Second

type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var files fileList
	flag.Var(&files, "file", "PDF to upload (repeatable)")
	backendURL := flag.String("backend", "", "document-QA backend base URL (overrides BACKEND_BASE_URL)")
	flag.Parse()

	if len(files) == 0 {
		color.Red("Usage: smartpdf-cli --file report.pdf [--file more.pdf]")
		os.Exit(2)
	}

	cfg := config.Load()
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	// Logs go to the file only so they do not interleave with the prompt.
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer sysLogger.Sync()

	gw := gateway.NewHTTPGateway(cfg.Backend.BaseURL, cfg.Backend.DetachedTimeout, sysLogger)
	guard := lifecycle.NewGuard(gw, sysLogger)
	store := session.NewStore(gw, session.Options{
		UploadTimeout:     cfg.Backend.UploadTimeout,
		ChatTimeout:       cfg.Backend.ChatTimeout,
		EndSessionTimeout: cfg.Backend.EndSessionTimeout,
		Logger:            sysLogger,
	})
	uploads := flow.NewUploadController(store, flow.UploadOptions{SingleFile: cfg.Workspace.SingleFileMode, Logger: sysLogger})
	chat := flow.NewChatController(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	released := guard.Watch(ctx, store, sigCh)
	go func() {
		<-released
		cancel()
	}()

	defer func() {
		if !guard.Wait(releaseGrace) {
			color.Yellow("Backend did not confirm the session was closed.")
		}
	}()

	docs, err := readFiles(files)
	if err != nil {
		color.Red("Failed: %v", err)
		return
	}

	if _, err := uploads.ChooseFiles(docs); err != nil {
		color.Red("Failed: %v", err)
		return
	}

	color.Cyan("Uploading %d file(s) to %s ...", len(docs), cfg.Backend.BaseURL)
	snap, err := uploads.Process(ctx)
	if err != nil {
		color.Red("Failed: %v", err)
		return
	}
	color.Green("Session %s ready. Ask a question, /end to end the session, /quit to leave.", snap.SessionID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")

		var (
			line string
			ok   bool
		)
		select {
		case <-released:
			fmt.Println()
			color.Yellow("Interrupted, session released.")
			return
		case line, ok = <-lines:
		}

		if !ok {
			fmt.Println()
			guard.Release(lifecycle.ReasonEOF, store)
			return
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/quit":
			guard.Release(lifecycle.ReasonEOF, store)
			return
		case "/end":
			if _, err := uploads.End(ctx); err != nil {
				color.Red("Failed: %v", err)
				continue
			}
			color.Green("Session ended and data cleared.")
			return
		}

		answer, err := chat.Send(ctx, line)
		switch {
		case errors.Is(err, session.ErrSuperseded), errors.Is(err, context.Canceled):
			continue
		case err != nil:
			color.Red("Failed: %v", err)
			continue
		}

		color.New(color.FgWhite).Println(answer.Text)
		if len(answer.Sources) > 0 {
			color.HiBlack("(%d source passage(s))", len(answer.Sources))
		}
	}
}

func readFiles(paths []string) ([]gateway.Document, error) {
	docs := make([]gateway.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		docs = append(docs, gateway.Document{
			Name:        filepath.Base(p),
			ContentType: "application/pdf",
			Data:        data,
		})
	}
	return docs, nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gennadis/apiclient/internal/auth"
	"github.com/gennadis/apiclient/internal/chat"
	"github.com/gennadis/apiclient/storage"
)

const (
	historySize = 20
	quitCommand = "/quit"
)

var (
	senderColor = color.New(color.FgCyan, color.Bold)
	systemColor = color.New(color.FgYellow)
)

func chatCmd() *cobra.Command {
	var fresh, list, history, wipe, remove bool
	cmd := &cobra.Command{
		Use:   "chat [NAME]",
		Short: "Join the broadcast chat, keeping history under NAME",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case list:
				return listSessions(out)
			case history:
				return showHistory(out, args[0])
			case wipe:
				return clearHistory(out, args[0])
			case remove:
				return deleteSession(out, args[0])
			}
			session, err := chatSession(args[0], fresh)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), session, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new session instead of resuming the last one")
	cmd.Flags().BoolVar(&list, "list", false, "list stored sessions")
	cmd.Flags().BoolVar(&history, "history", false, "print the full stored history of NAME")
	cmd.Flags().BoolVar(&wipe, "clear", false, "forget the messages of NAME but keep the session")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete NAME and its messages")
	cmd.MarkFlagsMutuallyExclusive("new", "list", "history", "clear", "delete")
	return cmd
}

func listSessions(out io.Writer) error {
	sessions, err := current.store.Sessions.Read()
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s\t%s\t%s\n", s.Name, s.ID, s.Timestamp.Format(time.DateTime))
	}
	return nil
}

func showHistory(out io.Writer, name string) error {
	session, err := current.store.Sessions.ByName(name)
	if err != nil {
		return fmt.Errorf("chat session %q: %w", name, err)
	}
	messages, err := current.store.Messages.ReadBySessionID(session.ID)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		printMessage(out, msg)
	}
	return nil
}

func clearHistory(out io.Writer, name string) error {
	session, err := current.store.Sessions.ByName(name)
	if err != nil {
		return fmt.Errorf("chat session %q: %w", name, err)
	}
	n, err := current.store.Messages.DeleteBySessionID(session.ID)
	if err != nil {
		return err
	}
	systemColor.Fprintf(out, "removed %d messages from %s\n", n, name)
	return nil
}

func deleteSession(out io.Writer, name string) error {
	session, err := current.store.Sessions.ByName(name)
	if err != nil {
		return fmt.Errorf("chat session %q: %w", name, err)
	}
	if err := current.store.Sessions.Delete(session.ID); err != nil {
		return err
	}
	systemColor.Fprintf(out, "deleted %s\n", name)
	return nil
}

// rotateTokens keeps the stored access token fresh for as long as a
// long-running command holds it. The returned func stops rotation, waits
// for it and closes the handler's ErrorChan.
func rotateTokens(ctx context.Context, ah *auth.AuthenticationHandler) (stop func()) {
	if _, ok := ah.Session(); !ok {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	wg := ah.Run(ctx)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for err := range ah.ErrorChan {
			slog.Warn("Access token rotation failed", "error", err)
		}
	}()

	return func() {
		cancel()
		wg.Wait()
		close(ah.ErrorChan)
		<-drained
	}
}

func chatSession(name string, fresh bool) (*chat.Session, error) {
	if !fresh {
		session, err := current.store.Sessions.ByName(name)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	session := chat.NewSession(name)
	if err := current.store.Sessions.Write(*session); err != nil {
		return nil, err
	}
	return session, nil
}

func runChat(ctx context.Context, session *chat.Session, in io.Reader, out io.Writer) error {
	history, err := current.store.Messages.Recent(session.ID, historySize)
	if err != nil {
		return err
	}
	for _, msg := range history {
		printMessage(out, msg)
	}

	var header http.Header
	if restore() == nil {
		header = http.Header{"Authorization": {"Bearer " + current.auth.AccessToken()}}
		stop := rotateTokens(ctx, current.auth)
		defer stop()
	}

	conn, err := chat.Dial(ctx, current.http.BaseURL(), session, header)
	if err != nil {
		return err
	}
	systemColor.Fprintf(out, "joined %s, type %s to leave\n", session.Name, quitCommand)

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		for {
			msg, err := conn.Receive()
			if err != nil {
				select {
				case <-done:
					return nil
				default:
				}
				if chat.IsClosed(err) {
					return nil
				}
				return fmt.Errorf("failed to receive chat message: %w", err)
			}
			printMessage(out, msg)
			if err := current.store.Messages.Write(msg); err != nil {
				slog.Error("Failed to store chat message", "error", err)
			}
		}
	})

	g.Go(func() error {
		defer conn.Close()
		defer close(done)

		lines := make(chan string)
		readErr := make(chan error, 1)
		go func() {
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-done:
					return
				}
			}
			readErr <- scanner.Err()
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-readErr:
				return err
			case line := <-lines:
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == quitCommand {
					return nil
				}
				if err := conn.Send(line); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}

func printMessage(out io.Writer, msg chat.Message) {
	ts := msg.Timestamp.Format("15:04:05")
	if msg.SenderID == "" {
		fmt.Fprintf(out, "%s %s\n", ts, msg.Content)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", ts, senderColor.Sprint(shortID(msg.SenderID)), msg.Content)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// chatctl is the operator tool of the hub: it creates users and lists
// conversations directly from a stopped hub's Badger directory.
package main

import (
	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

const usage = `usage:
  chatctl [-db path] [-secret s] [-ttl d] add-user <id> <display name>
  chatctl [-db path] conversations`

func main() {
	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Render(err.Error()))
	}
	os.Exit(code)
}

func run(args []string, out io.Writer) (int, error) {
	flags := flag.NewFlagSet("chatctl", flag.ContinueOnError)
	dbPath := flags.String("db", os.Getenv("BADGER_FILEPATH"), "path to the hub's Badger directory")
	secret := flags.String("secret", os.Getenv("JWT_SECRET"), "secret used to sign tokens")
	ttl := flags.Duration("ttl", 24*time.Hour, "validity of the printed token")
	if err := flags.Parse(args); err != nil {
		return exitUsage, err
	}
	if *dbPath == "" || flags.NArg() == 0 {
		return exitUsage, fmt.Errorf("%s", usage)
	}

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()
	store := repositories.NewConversationStore(db, logs.GetLoggerFromString("WARN"), nil)
	ctx := context.Background()

	switch command := flags.Arg(0); command {
	case "add-user":
		if flags.NArg() < 3 {
			return exitUsage, fmt.Errorf("%s", usage)
		}
		if *secret == "" {
			return exitUsage, fmt.Errorf("a secret is required to sign the token")
		}
		return addUser(ctx, out, store, auth.NewTokens(*secret, *ttl), flags.Arg(1), strings.Join(flags.Args()[2:], " "))
	case "conversations":
		return listConversations(ctx, out, store)
	default:
		return exitUsage, fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func addUser(ctx context.Context, out io.Writer, store *repositories.ConversationStore, tokens *auth.Tokens, id, displayName string) (int, error) {
	user := domain.User{ID: id, DisplayName: displayName, CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, errors.ErrInvalidArgument) {
			return exitUsage, err
		}
		return exitRuntime, fmt.Errorf("cannot create user %s: %w", id, err)
	}
	token, err := tokens.GenerateToken(auth.Identity{UserID: id, DisplayName: displayName})
	if err != nil {
		return exitRuntime, err
	}
	fmt.Fprintln(out, color.New(color.FgGreen, color.OpBold).Render("User created: ")+id)
	fmt.Fprintln(out, token)
	return exitOK, nil
}

func listConversations(ctx context.Context, out io.Writer, store *repositories.ConversationStore) (int, error) {
	stats, err := store.ScanConversations(ctx)
	if err != nil {
		return exitRuntime, err
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Conversation.CreatedAt.Before(stats[j].Conversation.CreatedAt)
	})

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Kind", "Name", "Participants", "Messages", "Deleted", "Created"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, s := range stats {
		kind, name := "direct", strings.Join(s.Conversation.ParticipantIDs(), " & ")
		if s.Conversation.IsGroup {
			kind, name = "group", s.Conversation.Name
		}
		table.Append([]string{
			s.Conversation.ID.String(),
			kind,
			name,
			strconv.Itoa(len(s.Conversation.Participants)),
			strconv.Itoa(s.Messages),
			strconv.Itoa(s.Deleted),
			s.Conversation.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	fmt.Fprintln(out, color.New(color.FgCyan).Render(fmt.Sprintf("%d conversation(s)", len(stats))))
	return exitOK, nil
}

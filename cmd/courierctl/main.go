package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrezende/courier/internal/chat"
	"github.com/mrezende/courier/internal/codec"
	"github.com/mrezende/courier/internal/config"
	"github.com/mrezende/courier/internal/convo"
	"github.com/mrezende/courier/internal/identity"
	"github.com/mrezende/courier/internal/lock"
	"github.com/mrezende/courier/internal/media"
	"github.com/mrezende/courier/internal/profile"
	"github.com/mrezende/courier/internal/remote/sqlitestore"
	"github.com/mrezende/courier/internal/thread"
	"github.com/mrezende/courier/internal/users"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	storeFlag := flag.String("store", "", "document store path (overrides profile default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		if len(args) < 3 {
			fatalUsage("login <email> <display name...>")
		}
		cmdLogin(profileName, args[1], strings.Join(args[2:], " "))
	case "logout":
		cmdLogout(profileName)
	case "register":
		if len(args) < 4 {
			fatalUsage("register <email> <first> <last>")
		}
		cmdRegister(ctx, profileName, *storeFlag, args[1], args[2], args[3])
	case "users":
		cmdUsers(ctx, profileName, *storeFlag)
	case "conversations":
		cmdConversations(ctx, profileName, *storeFlag)
	case "messages":
		if len(args) < 2 {
			fatalUsage("messages <conversation-id>")
		}
		cmdMessages(ctx, profileName, *storeFlag, args[1])
	case "send":
		if len(args) < 3 {
			fatalUsage("send <email> <text...>")
		}
		cmdSend(ctx, profileName, *storeFlag, args[1], codec.Text(strings.Join(args[2:], " ")))
	case "send-photo":
		if len(args) < 3 {
			fatalUsage("send-photo <email> <file>")
		}
		cmdSendPhoto(ctx, profileName, *storeFlag, args[1], args[2])
	case "delete":
		if len(args) < 2 {
			fatalUsage("delete <conversation-id>")
		}
		cmdDelete(ctx, profileName, *storeFlag, args[1])
	default:
		printUsage()
		os.Exit(1)
	}
}

// env bundles the store-backed components a command needs. The profile lock
// is held for the duration: the store assumes a single writer per device.
type env struct {
	session *profile.Session // nil when signed out
	db      *sqlitestore.DB
	lk      *lock.Lock
	index   *convo.Index
	threads *thread.Store
	dir     *users.Directory
}

func openEnv(profileName, storeOverride string) *env {
	if err := profile.EnsureDir(profileName); err != nil {
		fatal(err)
	}
	lk, err := lock.Acquire(profile.Dir(profileName))
	if err != nil {
		fatal(err)
	}

	storePath := storeOverride
	if storePath == "" {
		if cfg, err := config.Load(profile.ConfigPath()); err == nil && cfg.StorePath != "" {
			storePath = cfg.StorePath
		} else {
			storePath = profile.StorePath(profileName)
		}
	}
	db, err := sqlitestore.Open(storePath)
	if err != nil {
		_ = lk.Release()
		fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = lk.Release()
		fatal(err)
	}

	session, err := profile.LoadSession(profile.SessionPath(profileName))
	if err != nil && !errors.Is(err, profile.ErrNoSession) {
		fatal(err)
	}

	logger := zap.NewNop()
	return &env{
		session: session,
		db:      db,
		lk:      lk,
		index:   convo.NewIndex(db, logger),
		threads: thread.NewStore(db, logger),
		dir:     users.NewDirectory(db, logger),
	}
}

func (e *env) close() {
	_ = e.db.Close()
	_ = e.lk.Release()
}

func (e *env) requireSession() *profile.Session {
	if e.session == nil {
		fatal(chat.ErrIdentityMissing)
	}
	return e.session
}

func (e *env) orchestrator() *chat.Orchestrator {
	return chat.NewOrchestrator(e.requireSession(), e.index, e.threads, zap.NewNop())
}

func cmdLogin(profileName, email, displayName string) {
	if err := profile.EnsureDir(profileName); err != nil {
		fatal(err)
	}
	s := &profile.Session{Email: email, DisplayName: displayName}
	if err := profile.SaveSession(profile.SessionPath(profileName), s); err != nil {
		fatal(err)
	}
	fmt.Printf("signed in as %s (%s)\n", displayName, s.Identity())
}

func cmdLogout(profileName string) {
	if err := profile.ClearSession(profile.SessionPath(profileName)); err != nil {
		fatal(err)
	}
	fmt.Println("signed out")
}

func cmdRegister(ctx context.Context, profileName, storeOverride, email, first, last string) {
	e := openEnv(profileName, storeOverride)
	defer e.close()

	id := identity.Canonicalize(email)
	exists, err := e.dir.Exists(ctx, id)
	if err != nil {
		fatal(err)
	}
	if exists {
		fatal(fmt.Errorf("user already exists for %s", email))
	}
	if err := e.dir.Create(ctx, id, first, last); err != nil {
		fatal(err)
	}

	s := &profile.Session{Email: email, DisplayName: first + " " + last}
	if err := profile.SaveSession(profile.SessionPath(profileName), s); err != nil {
		fatal(err)
	}
	fmt.Printf("registered %s as %s\n", email, id)
}

func cmdUsers(ctx context.Context, profileName, storeOverride string) {
	e := openEnv(profileName, storeOverride)
	defer e.close()

	entries, err := e.dir.List(ctx)
	if err != nil {
		fatal(err)
	}
	for _, entry := range entries {
		fmt.Printf("%s\t%s\n", entry.Email, entry.Name)
	}
}

func cmdConversations(ctx context.Context, profileName, storeOverride string) {
	e := openEnv(profileName, storeOverride)
	defer e.close()
	session := e.requireSession()

	summaries, err := e.index.Load(ctx, session.Identity())
	if errors.Is(err, convo.ErrNotFound) {
		return // no conversations yet
	}
	if err != nil {
		fatal(err)
	}
	for _, s := range summaries {
		marker := " "
		if !s.Latest.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\t%s\n", marker, s.ID, s.DisplayName, s.Latest.Text)
	}
}

func cmdMessages(ctx context.Context, profileName, storeOverride, conversationID string) {
	e := openEnv(profileName, storeOverride)
	defer e.close()

	msgs, err := e.threads.Load(ctx, conversationID)
	if err != nil {
		fatal(err)
	}
	loader := media.NewLoader(32)
	for _, m := range msgs {
		content := codec.Content(m.Kind)
		switch m.Kind.(type) {
		case codec.Photo, codec.Video:
			if data, err := loader.Load(ctx, content); err == nil {
				content = fmt.Sprintf("%s (%d bytes)", content, len(data))
			}
		}
		fmt.Printf("[%s] %s: %s\n", codec.FormatDate(m.SentDate), m.Sender, content)
	}
}

func cmdSend(ctx context.Context, profileName, storeOverride, email string, kind codec.Kind) {
	e := openEnv(profileName, storeOverride)
	defer e.close()
	o := e.orchestrator()

	counterpart := identity.Canonicalize(email)
	displayName, err := e.dir.DisplayName(ctx, counterpart)
	if errors.Is(err, users.ErrNotFound) {
		displayName = email
	} else if err != nil {
		fatal(err)
	}

	m, err := o.NewOutgoing(counterpart, kind, time.Now())
	if err != nil {
		fatal(err)
	}

	conversationID, err := e.findConversation(ctx, counterpart)
	if errors.Is(err, convo.ErrNotFound) {
		id, err := o.CreateConversation(ctx, counterpart, displayName, m)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("created %s\n", id)
		return
	}
	if err != nil {
		fatal(err)
	}

	if err := o.SendMessage(ctx, conversationID, counterpart, displayName, m); err != nil {
		fatal(err)
	}
	fmt.Printf("sent to %s\n", conversationID)
}

func cmdSendPhoto(ctx context.Context, profileName, storeOverride, email, file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		fatal(err)
	}

	uploader := media.NewDirUploader(profile.MediaDir(profileName))
	url, err := uploader.Upload(ctx, data, filepath.Join("message_images", filepath.Base(file)))
	if err != nil {
		fatal(err)
	}

	cmdSend(ctx, profileName, storeOverride, email, codec.Photo{URL: url})
}

func cmdDelete(ctx context.Context, profileName, storeOverride, conversationID string) {
	e := openEnv(profileName, storeOverride)
	defer e.close()
	session := e.requireSession()

	if err := e.index.Delete(ctx, session.Identity(), conversationID); err != nil {
		fatal(err)
	}
	fmt.Printf("deleted %s from your conversations\n", conversationID)
}

// findConversation locates an existing conversation with the counterpart,
// checking our own index first and then the counterpart's, so a chat the
// other side started (or that we deleted locally) is reused instead of
// duplicated.
func (e *env) findConversation(ctx context.Context, counterpart identity.Identity) (string, error) {
	me := e.requireSession().Identity()

	id, err := e.index.FindByCounterpart(ctx, me, counterpart)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, convo.ErrNotFound) {
		return "", err
	}
	return e.index.FindByCounterpart(ctx, counterpart, me)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: courierctl [-profile name] [-store path] <command>

commands:
  login <email> <display name...>   sign in on this profile
  logout                            sign out
  register <email> <first> <last>   create a user record and sign in
  users                             list the user directory
  conversations                     list your conversations
  messages <conversation-id>        print a conversation's messages
  send <email> <text...>            send a text message
  send-photo <email> <file>         upload a photo and send it
  delete <conversation-id>          remove a conversation from your list`)
}

func fatalUsage(usage string) {
	fmt.Fprintf(os.Stderr, "usage: courierctl %s\n", usage)
	os.Exit(1)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

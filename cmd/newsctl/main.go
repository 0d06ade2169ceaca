package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/technews/pkg/api/client"
	"github.com/splax/technews/pkg/locale"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

const defaultAPIBase = "http://localhost:4000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	commands := map[string]func([]string) error{
		"signup":    commandSignup,
		"login":     commandLogin,
		"logout":    commandLogout,
		"whoami":    commandWhoami,
		"articles":  commandArticles,
		"read":      commandRead,
		"write":     commandWrite,
		"like":      commandLike,
		"comment":   commandComment,
		"uncomment": commandUncomment,
		"watch":     commandWatch,
	}
	switch cmd {
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func readSecret(prompt, provided string) (string, error) {
	if secret := strings.TrimSpace(provided); secret != "" {
		return secret, nil
	}
	fmt.Print(prompt)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func clientFor(cfg cliConfig, apiBase string) (*apiclient.Client, cliConfig, error) {
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	return client, cfg, err
}

// signedIn loads the stored token and a client for the stored API.
func signedIn() (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'newsctl login'")
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	return client, token, err
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	secret, err := readSecret("Password: ", *password)
	if err != nil {
		return err
	}
	confirm := secret
	if strings.TrimSpace(*password) == "" {
		if confirm, err = readSecret("Confirm password: ", ""); err != nil {
			return err
		}
	}

	stored, _ := loadConfig()
	client, cfg, err := clientFor(stored, *apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	session, err := client.Signup(ctx, apiclient.SignupInput{
		DisplayName:     *name,
		Email:           *email,
		Password:        secret,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return err
	}
	cfg.AccessToken = session.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("signed up as %s\n", session.User.DisplayName)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readSecret("Password: ", *password)
	if err != nil {
		return err
	}

	stored, _ := loadConfig()
	client, cfg, err := clientFor(stored, *apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	session, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = session.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("login successful")
	return nil
}

func commandLogout(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.AccessToken) != "" {
		client, err := apiclient.New(cfg.APIBaseURL)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := client.Logout(ctx, cfg.AccessToken); err != nil {
			fmt.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
		}
	}
	cfg.AccessToken = ""
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func commandWhoami(args []string) error {
	client, token, err := signedIn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	me, err := client.Me(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s>\t%s\t%s\n", me.DisplayName, me.Email, locale.RoleName(me.Role), locale.FormatDate(me.CreatedAt, nil))
	return nil
}

func commandArticles(args []string) error {
	fs := flag.NewFlagSet("articles", flag.ExitOnError)
	category := fs.String("category", "", "Category filter (programming|ai|mobile|security|news)")
	mine := fs.Bool("mine", false, "Only my articles")
	limit := fs.Int("limit", 20, "Maximum number of articles")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	query := apiclient.ArticleQuery{Category: *category, Limit: *limit}
	if *mine {
		if strings.TrimSpace(cfg.AccessToken) == "" {
			return errors.New("please login first using 'newsctl login'")
		}
		me, err := client.Me(ctx, cfg.AccessToken)
		if err != nil {
			return err
		}
		query.AuthorID = me.ID
	}
	articles, err := client.ListArticles(ctx, query)
	if err != nil {
		return err
	}
	for _, a := range articles {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", a.ID, locale.CategoryName(a.Category), a.Title, a.AuthorName, locale.FormatDate(a.CreatedAt, nil))
	}
	return nil
}

func commandRead(args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	articleID := fs.String("article", "", "Article identifier")
	fs.Parse(args)
	if strings.TrimSpace(*articleID) == "" {
		return errors.New("--article is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a, err := client.GetArticle(ctx, *articleID)
	if err != nil {
		return err
	}
	comments, err := client.ListComments(ctx, *articleID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s · %s · %s\n", a.Title, locale.CategoryName(a.Category), a.AuthorName, locale.FormatDateTime(a.CreatedAt, nil))
	if a.ImageURL != "" {
		fmt.Println(a.ImageURL)
	}
	fmt.Printf("\n%s\n\n", a.Content)
	fmt.Printf("%s پسند · %s نظر\n", locale.Number(len(a.Likes)), locale.Number(len(comments)))
	printComments(comments)
	return nil
}

func printComments(comments []apiclient.Comment) {
	for _, c := range comments {
		fmt.Printf("- [%s] %s (%s): %s\n", c.ID, c.AuthorName, locale.FormatDateTime(c.CreatedAt, nil), c.Content)
	}
}

func commandWrite(args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	title := fs.String("title", "", "Article title")
	content := fs.String("content", "", "Article body, or @path to read it from a file")
	category := fs.String("category", "programming", "Category")
	excerpt := fs.String("excerpt", "", "Optional excerpt")
	imagePath := fs.String("image", "", "Optional image file")
	fs.Parse(args)

	body := *content
	if strings.HasPrefix(body, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		body = string(data)
	}

	client, token, err := signedIn()
	if err != nil {
		return err
	}
	var image *apiclient.ImageUpload
	if strings.TrimSpace(*imagePath) != "" {
		f, err := os.Open(*imagePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close()
		image = &apiclient.ImageUpload{Filename: filepath.Base(*imagePath), Body: f}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	created, err := client.CreateArticle(ctx, token, apiclient.CreateArticleInput{
		Title:    *title,
		Content:  body,
		Category: *category,
		Excerpt:  *excerpt,
	}, image)
	if err != nil {
		return err
	}
	fmt.Printf("article published: %s\n", created.ID)
	return nil
}

func commandLike(args []string) error {
	fs := flag.NewFlagSet("like", flag.ExitOnError)
	articleID := fs.String("article", "", "Article identifier")
	fs.Parse(args)
	if strings.TrimSpace(*articleID) == "" {
		return errors.New("--article is required")
	}
	client, token, err := signedIn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a, err := client.ToggleLike(ctx, token, *articleID)
	if err != nil {
		return err
	}
	fmt.Printf("%s پسند\n", locale.Number(len(a.Likes)))
	return nil
}

func commandComment(args []string) error {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	articleID := fs.String("article", "", "Article identifier")
	text := fs.String("text", "", "Comment text")
	fs.Parse(args)
	if strings.TrimSpace(*articleID) == "" {
		return errors.New("--article is required")
	}
	client, token, err := signedIn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	created, err := client.SubmitComment(ctx, token, *articleID, *text)
	if err != nil {
		return err
	}
	fmt.Printf("comment posted: %s\n", created.ID)
	return nil
}

func commandUncomment(args []string) error {
	fs := flag.NewFlagSet("uncomment", flag.ExitOnError)
	commentID := fs.String("comment", "", "Comment identifier")
	fs.Parse(args)
	if strings.TrimSpace(*commentID) == "" {
		return errors.New("--comment is required")
	}
	client, token, err := signedIn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.DeleteComment(ctx, token, *commentID); err != nil {
		return err
	}
	fmt.Println("comment deleted")
	return nil
}

// commandWatch follows the live comment feed. Typing another article id on
// stdin switches to it; an empty line stops watching.
func commandWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	articleID := fs.String("article", "", "Article identifier")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := client.NewCommentWatcher(func(s apiclient.Snapshot) {
		fmt.Printf("\n== %s · %s نظر · %s ==\n", s.ArticleID, locale.Number(len(s.Comments)), locale.FormatDateTime(s.At, nil))
		printComments(s.Comments)
	})
	defer watcher.Close()

	if strings.TrimSpace(*articleID) != "" {
		if err := watcher.Watch(ctx, strings.TrimSpace(*articleID)); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		var done <-chan struct{}
		if sub := watcher.Current(); sub != nil {
			done = sub.Done()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			if sub := watcher.Current(); sub != nil && sub.Err() != nil {
				return fmt.Errorf("comment stream closed: %w", sub.Err())
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := watcher.Watch(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if custom := strings.TrimSpace(os.Getenv("NEWSCTL_CONFIG")); custom != "" {
		return custom, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "newsctl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("newsctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	newsctl signup --name <display name> --email user@example.com [--password secret] [--api http://localhost:4000]
	newsctl login --email user@example.com [--password secret] [--api http://localhost:4000]
	newsctl logout
	newsctl whoami
	newsctl articles [--category ai] [--mine] [--limit N]
	newsctl read --article <article-id>
	newsctl write --title <title> --content <text|@file> [--category programming] [--excerpt text] [--image cover.png]
	newsctl like --article <article-id>
	newsctl comment --article <article-id> --text <text>
	newsctl uncomment --comment <comment-id>
	newsctl watch [--article <article-id>]
	newsctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/session"
)

func loginCmd(args []string) {
	flags := flag.NewFlagSet("login", flag.ExitOnError)
	email := flags.String("email", "", "SharkClean account email")
	passwordFile := flags.String("password-file", "", "Read the password from a file (default: prompt)")
	configPath := flags.String("config", envOrDefault("SHARKD_CONFIG", config.DefaultPath), "Path to config.yaml")
	timeout := flags.Duration("timeout", 30*time.Second, "Timeout for the login request")
	_ = flags.Parse(args)

	if *email == "" {
		fatal("login", fmt.Errorf("--email is required"))
	}

	manager := newManager("login", *configPath)

	var password string
	if *passwordFile != "" {
		secret, err := blob.ReadSecretFile(*passwordFile)
		if err != nil {
			fatal("login", err)
		}
		password = secret
	} else {
		fmt.Print("Password: ")
		reader := bufio.NewReader(os.Stdin)
		text, _ := reader.ReadString('\n')
		password = strings.TrimRight(text, "\r\n")
	}
	if password == "" {
		fatal("login", fmt.Errorf("password is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := manager.Login(ctx, *email, password); err != nil {
		fatal("login", err)
	}
	fmt.Printf("Logged in as %s\n", *email)
}

func logoutCmd(args []string) {
	flags := flag.NewFlagSet("logout", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("SHARKD_CONFIG", config.DefaultPath), "Path to config.yaml")
	_ = flags.Parse(args)

	manager := newManager("logout", *configPath)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Logout(ctx); err != nil {
		fatal("logout", err)
	}
	fmt.Println("Logged out")
}

func newManager(action, configPath string) *session.Manager {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal(action, err)
	}
	store, err := blob.New(cfg.Blob)
	if err != nil {
		fatal(action, err)
	}
	manager, err := session.NewManager(cfg.Session, store)
	if err != nil {
		fatal(action, err)
	}
	return manager
}

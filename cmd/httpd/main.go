// Command httpd is the server's entry point: it wires config, logging,
// metrics, the user store, the database pool, and the reactor/acceptor
// together, then runs either as the single-process deployment or, when
// acceptor.ChildEnvVar names an inherited token-socket fd, as one worker of
// the multi-process deployment (spec.md §6's CLI contract: a single port
// argument, exit 1 on a missing or invalid one). An unreachable database
// does not abort startup — see DESIGN.md.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/reactorweb/httpd/acceptor"
	"github.com/reactorweb/httpd/config"
	"github.com/reactorweb/httpd/dbpool"
	"github.com/reactorweb/httpd/logging"
	"github.com/reactorweb/httpd/metrics"
	"github.com/reactorweb/httpd/router"
	"github.com/reactorweb/httpd/userstore"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lg := logging.New(logrus.InfoLevel, 4096)
	defer lg.Close()

	mx := metrics.New(prometheus.DefaultRegisterer)
	users := userstore.New()

	db, err := dbpool.Open(dbpool.Config{
		Host: cfg.DBHost, Port: cfg.DBPort, User: cfg.DBUser,
		Password: cfg.DBPassword, Database: cfg.DBName, Max: cfg.DBMaxConns,
	})
	if err != nil {
		// Deliberate divergence from a literal exit-1-on-pool-failure
		// reading of the CLI contract (see DESIGN.md): static files are
		// this server's primary job, so a down database degrades
		// login/register instead of refusing to start.
		log.Printf("httpd: database pool unavailable, continuing with an empty user store: %v", err)
		db = nil
	} else {
		defer db.Close()
		if err := primeUsers(users, db); err != nil {
			lg.Warn("user store priming failed", map[string]interface{}{"error": err.Error()})
		}
	}

	rt := router.New(cfg, users, db, lg)

	if tokenFdStr := os.Getenv(acceptor.ChildEnvVar); tokenFdStr != "" {
		runChild(cfg, tokenFdStr, rt, lg, mx)
		return
	}
	runSingleProcessOrSupervisor(cfg, rt, lg, mx)
}

// primeUsers loads the username -> password table from the database once at
// startup (spec.md §3 UserRecord: "Loaded once at startup from the
// database").
func primeUsers(users *userstore.Store, db *dbpool.Pool) error {
	ctx := context.Background()
	lease, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Close()

	rows, err := lease.Conn().QueryContext(ctx, "SELECT username, passwd FROM user")
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[string]string)
	for rows.Next() {
		var name, pwd string
		if err := rows.Scan(&name, &pwd); err != nil {
			return err
		}
		loaded[name] = pwd
	}
	if err := rows.Err(); err != nil {
		return err
	}
	users.Load(loaded)
	return nil
}

// runSingleProcessOrSupervisor implements spec.md §4.3's top-level choice:
// ProcessCount <= 1 runs the single-process reactor+workpool deployment;
// otherwise it starts the multi-process supervisor and re-exec'd children.
func runSingleProcessOrSupervisor(cfg config.Config, rt *router.Router, lg *logging.Logger, mx *metrics.Registry) {
	listenFd, err := acceptor.Listen(cfg.Port)
	if err != nil {
		log.Printf("httpd: listen: %v", err)
		os.Exit(1)
	}

	if cfg.ProcessCount <= 1 {
		srv, err := acceptor.New(cfg, listenFd, rt, lg, mx)
		if err != nil {
			log.Printf("httpd: acceptor: %v", err)
			os.Exit(1)
		}
		runWithShutdownSignal(srv)
		return
	}

	sv, err := acceptor.NewSupervisor(cfg.ProcessCount, listenFd, lg)
	if err != nil {
		log.Printf("httpd: supervisor: %v", err)
		os.Exit(1)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	if err := sv.Run(ctx); err != nil {
		log.Printf("httpd: supervisor exited: %v", err)
	}
}

// runChild is one worker of the multi-process deployment: fd 3 is the
// inherited shared listener, the fd named by acceptor.ChildEnvVar is this
// child's token socket from the supervisor.
func runChild(cfg config.Config, tokenFdStr string, rt *router.Router, lg *logging.Logger, mx *metrics.Registry) {
	tokenFd, err := strconv.Atoi(tokenFdStr)
	if err != nil {
		log.Printf("httpd: invalid %s=%q", acceptor.ChildEnvVar, tokenFdStr)
		os.Exit(1)
	}
	const inheritedListenerFd = 3

	srv, err := acceptor.NewChild(cfg, inheritedListenerFd, tokenFd, rt, lg, mx)
	if err != nil {
		log.Printf("httpd: child acceptor: %v", err)
		os.Exit(1)
	}
	runWithShutdownSignal(srv)
}

func runWithShutdownSignal(srv *acceptor.Server) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	if err := srv.Run(); err != nil {
		log.Printf("httpd: run: %v", err)
	}
	srv.Close()
}

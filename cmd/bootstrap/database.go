package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/code-100-precent/LingCare/internal/models"
	"github.com/code-100-precent/LingCare/pkg/config"
	"github.com/code-100-precent/LingCare/pkg/logger"
	"github.com/code-100-precent/LingCare/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	InitSQLPath string
	AutoMigrate bool
	// SeedNonProd adds the demo room outside production
	SeedNonProd bool
}

// SetupDatabase opens the configured database, runs the optional init script,
// migrates and seeds.
func SetupDatabase(w io.Writer, opts *Options) (*gorm.DB, error) {
	if opts == nil {
		opts = &Options{AutoMigrate: true}
	}
	db, err := initDBConn(w)
	if err != nil {
		return nil, err
	}
	if opts.InitSQLPath != "" {
		if err := RunInitSQL(db, opts.InitSQLPath); err != nil {
			return nil, fmt.Errorf("init sql: %w", err)
		}
		fmt.Fprintf(w, "init sql applied: %s\n", opts.InitSQLPath)
	}
	if opts.AutoMigrate {
		if err := RunMigrations(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if opts.SeedNonProd && !isProduction() {
		if err := NewSeedService(db).SeedAll(); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}
	return db, nil
}

func initDBConn(w io.Writer) (*gorm.DB, error) {
	if config.GlobalConfig == nil {
		return nil, errors.New("config not loaded")
	}
	dbCfg := config.GlobalConfig.Database
	db, err := utils.InitDatabase(dbCfg.Driver, dbCfg.DSN)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "database connected: driver=%s\n", dbCfg.Driver)
	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database")
	}
	return db.AutoMigrate(&models.TrackedEntry{})
}

// RunInitSQL executes a ';' separated script. Lines starting with "--" or
// "#" are comments.
func RunInitSQL(db *gorm.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var stmt strings.Builder
	exec := func() error {
		s := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if s == "" {
			return nil
		}
		if err := db.Exec(s).Error; err != nil {
			logger.Error("init sql statement failed", zap.String("statement", s), zap.Error(err))
			return err
		}
		return nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
			continue
		}
		stmt.WriteString(line)
		stmt.WriteString("\n")
		if strings.HasSuffix(line, ";") {
			if err := exec(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return exec()
}

func isProduction() bool {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" && config.GlobalConfig != nil {
		env = strings.ToLower(config.GlobalConfig.Mode)
	}
	return env == "production" || env == "prod"
}

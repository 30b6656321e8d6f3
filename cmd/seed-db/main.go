// Command seed-db applies migrations and loads the product catalogue from a
// JSON file, optionally gzip-compressed (.json.gz).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/phongit-kha/pos-lmwn/internal/domain/product"
	"github.com/phongit-kha/pos-lmwn/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	created, updated, err := seedProducts(ctx, postgres.NewProductRepository(pool), products)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	slog.Info("products seeded", slog.Int("created", created), slog.Int("updated", updated))
	return nil
}

// seedProducts creates products that are missing and updates the ones whose
// name already exists. Running it twice is harmless.
func seedProducts(ctx context.Context, repo product.Repository, products []product.Product) (created, updated int, err error) {
	existing, err := productsByName(ctx, repo)
	if err != nil {
		return 0, 0, err
	}

	for _, p := range products {
		if err := product.Validate(&p); err != nil {
			return created, updated, errors.Wrapf(err, "product %q", p.Name)
		}
		if cur, ok := existing[p.Name]; ok {
			p.ID = cur.ID
			if err := repo.Update(ctx, &p); err != nil {
				return created, updated, errors.Wrapf(err, "update product %q", p.Name)
			}
			updated++
			slog.Info("updated product", slog.Int64("id", p.ID), slog.String("name", p.Name))
			continue
		}
		if err := repo.Create(ctx, &p); err != nil {
			return created, updated, errors.Wrapf(err, "create product %q", p.Name)
		}
		existing[p.Name] = p
		created++
		slog.Info("created product", slog.Int64("id", p.ID), slog.String("name", p.Name))
	}
	return created, updated, nil
}

func productsByName(ctx context.Context, repo product.Repository) (map[string]product.Product, error) {
	const pageSize = 100
	out := make(map[string]product.Product)
	for page := 1; ; page++ {
		res, err := repo.List(ctx, product.ListFilter{Page: page, Limit: pageSize})
		if err != nil {
			return nil, errors.Wrap(err, "list products")
		}
		for _, p := range res.Items {
			out[p.Name] = p
		}
		if len(res.Items) < pageSize {
			return out, nil
		}
	}
}

package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

//go:embed migrations/*.sql
var migrations embed.FS

// ProductReader is what the cart and pricing handlers need from the catalog.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared between queries
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, description, retail_price
		FROM products
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var products []*domain.Product
	byID := make(map[int64]*domain.Product)
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.RetailPrice); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if err := r.attachDetails(ctx, byID, "", nil); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, description, retail_price
		FROM products
		WHERE id = ?
	`

	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.RetailPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	if err := r.attachDetails(ctx, map[int64]*domain.Product{p.ID: p}, "WHERE product_id = ?", []any{id}); err != nil {
		return nil, err
	}
	return p, nil
}

// attachDetails loads images and wholesale tiers in catalog position order.
func (r *Repository) attachDetails(ctx context.Context, byID map[int64]*domain.Product, where string, args []any) error {
	images, err := r.db.QueryContext(ctx, `SELECT product_id, url FROM product_images `+where+` ORDER BY product_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query images: %w", err)
	}
	for images.Next() {
		var productID int64
		var url string
		if err := images.Scan(&productID, &url); err != nil {
			images.Close()
			return fmt.Errorf("failed to scan image: %w", err)
		}
		if p, ok := byID[productID]; ok {
			p.Images = append(p.Images, url)
		}
	}
	if err := images.Err(); err != nil {
		images.Close()
		return fmt.Errorf("row iteration error: %w", err)
	}
	images.Close()

	tiers, err := r.db.QueryContext(ctx, `SELECT product_id, min_quantity, unit_price, discount FROM wholesale_tiers `+where+` ORDER BY product_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query wholesale tiers: %w", err)
	}
	defer tiers.Close()
	for tiers.Next() {
		var productID int64
		var t domain.WholesaleTier
		if err := tiers.Scan(&productID, &t.MinQuantity, &t.UnitPrice, &t.Discount); err != nil {
			return fmt.Errorf("failed to scan wholesale tier: %w", err)
		}
		if p, ok := byID[productID]; ok {
			p.WholesaleTiers = append(p.WholesaleTiers, t)
		}
	}
	if err := tiers.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

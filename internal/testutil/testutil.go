// Package testutil provides fixtures shared by package tests.
package testutil

import "github.com/queryforge/queryforge/internal/schema"

// SampleTables returns a small retail schema used as a fixture across tests:
// users, orders, products, and categories with realistic keys.
func SampleTables() []schema.Table {
	return []schema.Table{
		{
			Name: "users",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "email", Type: "VARCHAR"},
				{Name: "created_at", Type: "TIMESTAMP"},
			},
			PrimaryKey: []string{"id"},
		},
		{
			Name: "orders",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "user_id", Type: "INTEGER"},
				{Name: "product_id", Type: "INTEGER"},
				{Name: "amount", Type: "DECIMAL(10,2)"},
				{Name: "status", Type: "VARCHAR"},
				{Name: "order_date", Type: "DATE"},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				{Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
				{Column: "product_id", ReferencedTable: "products", ReferencedColumn: "id"},
			},
		},
		{
			Name: "products",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR"},
				{Name: "price", Type: "DECIMAL(10,2)"},
				{Name: "category_id", Type: "INTEGER"},
			},
			PrimaryKey: []string{"id"},
			ForeignKeys: []schema.ForeignKey{
				{Column: "category_id", ReferencedTable: "categories", ReferencedColumn: "id"},
			},
		},
		{
			Name: "categories",
			Columns: []schema.Column{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR"},
			},
			PrimaryKey: []string{"id"},
		},
	}
}

// SampleSnapshot builds an immutable snapshot of SampleTables.
func SampleSnapshot() *schema.Snapshot {
	return schema.NewSnapshot(SampleTables())
}

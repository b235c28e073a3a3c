// Package domain holds the core business types shared across the
// application: campaign metric snapshots, automation rules with their
// condition/action trees, execution audit logs, and subscription limits.
// Types here carry no behavior beyond validation and small helpers;
// persistence and evaluation live in their own packages.
package domain

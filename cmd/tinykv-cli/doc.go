// Package main provides the entry point for tinykv-cli.
//
// Usage:
//
//	tinykv-cli ping
//	tinykv-cli set --px 5000 greeting hello
//	tinykv-cli -o json get greeting
//	tinykv-cli bench --clients 50 --requests 100000 --progress
package main

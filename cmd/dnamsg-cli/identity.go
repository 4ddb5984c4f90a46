// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Create, list, load, and delete identities",
}

var (
	identityPassword string
	identityName     string
	identityFP       string
)

var identityCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new identity, encrypted under --password",
	RunE:  runIdentityCreate,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities present in the daemon's data directory",
	RunE:  runIdentityList,
}

var identityLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load an identity and cache its session token for subsequent commands",
	RunE:  runIdentityLoad,
}

var identityDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Permanently delete an identity",
	RunE:  runIdentityDelete,
}

func init() {
	identityCreateCmd.Flags().StringVar(&identityPassword, "password", "", "password the new identity's keys are encrypted under")
	identityCreateCmd.Flags().StringVar(&identityName, "name", "", "optional display name")
	_ = identityCreateCmd.MarkFlagRequired("password")

	identityLoadCmd.Flags().StringVar(&identityFP, "fingerprint", "", "fingerprint of the identity to load")
	identityLoadCmd.Flags().StringVar(&identityPassword, "password", "", "password the identity's keys are encrypted under")
	_ = identityLoadCmd.MarkFlagRequired("fingerprint")
	_ = identityLoadCmd.MarkFlagRequired("password")

	identityDeleteCmd.Flags().StringVar(&identityFP, "fingerprint", "", "fingerprint of the identity to delete")
	_ = identityDeleteCmd.MarkFlagRequired("fingerprint")

	identityCmd.AddCommand(identityCreateCmd, identityListCmd, identityLoadCmd, identityDeleteCmd)
	rootCmd.AddCommand(identityCmd)
}

func runIdentityCreate(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/identities", map[string]string{
		"password": identityPassword,
		"name":     identityName,
	})
	if err != nil {
		return err
	}
	var fp string
	if err := json.Unmarshal(result, &fp); err != nil {
		return fmt.Errorf("decode created fingerprint: %w", err)
	}
	printResult(map[string]string{"fingerprint": fp})
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("GET", "/api/v1/identities", nil)
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

func runIdentityLoad(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/identities/load", map[string]string{
		"fingerprint": identityFP,
		"password":    identityPassword,
	})
	if err != nil {
		return err
	}
	var loaded struct {
		Fingerprint string `json:"fingerprint"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(result, &loaded); err != nil {
		return fmt.Errorf("decode load response: %w", err)
	}
	if err := writeSessionToken(loaded.Token); err != nil {
		return fmt.Errorf("cache session token: %w", err)
	}
	printResult(map[string]string{"fingerprint": loaded.Fingerprint, "status": "loaded"})
	return nil
}

func runIdentityDelete(cmd *cobra.Command, args []string) error {
	result, err := newAPIClient().do("POST", "/api/v1/identities/delete", map[string]string{"fingerprint": identityFP})
	if err != nil {
		return err
	}
	printResult(json.RawMessage(result))
	return nil
}

package kv

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the merged value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if value, err := client.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, value=%v\n", key, value)
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes a last-writer-wins value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := client.PutLWW(key, []byte(value)); err != nil {
				return err
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [key] [elem]",
		Short: "Unions an element into a key's set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			elem := args[1]
			if err := client.AddToSet(key, elem); err != nil {
				return err
			} else {
				fmt.Println("add successfully")
			}
			return nil
		},
	}
)

package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mwojnars/ringdb"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the ring stack, bottom to top",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		for _, r := range db.Rings() {
			st := r.Stats()
			stop := "unbounded"
			if st.StopID != 0 {
				stop = strconv.FormatUint(st.StopID, 10)
			}
			mode := "rw"
			if st.ReadOnly {
				mode = "ro"
			}
			fmt.Printf("%-16s [%d, %s) %s  %d records, autoincrement %d\n",
				st.Name, st.StartID, stop, mode, st.Records, st.Autoincrement)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print the record stored under an id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		rec, err := db.Select(id)
		if err != nil {
			return err
		}
		value, err := rec.Value()
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert [<id>] <json>",
	Short: "Insert a record, with an explicit id or an assigned one",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload map[string]any
		if err := json.Unmarshal([]byte(args[len(args)-1]), &payload); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if len(args) == 2 {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			if err := db.InsertID(id, payload); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		}
		id, err := db.Insert(payload)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <json>",
	Short: "Merge-patch the record stored under an id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		var patch map[string]any
		if err := json.Unmarshal([]byte(args[1]), &patch); err != nil {
			return fmt.Errorf("bad patch: %w", err)
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		data, err := db.Update(id, ringdb.MergePatch(patch))
		if err != nil {
			return err
		}
		out, err := json.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete the record stored under an id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		existed, err := db.Delete(id)
		if err != nil {
			return err
		}
		if !existed {
			fmt.Println("not found")
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [<start> [<stop>]]",
	Short: "List records in ascending id order (stop is exclusive, 0 = unbounded)",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var start, stop uint64
		var err error
		if len(args) > 0 {
			if start, err = strconv.ParseUint(args[0], 10, 64); err != nil {
				return err
			}
		}
		if len(args) > 1 {
			if stop, err = strconv.ParseUint(args[1], 10, 64); err != nil {
				return err
			}
		}
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		cur, err := db.Scan(start, stop)
		if err != nil {
			return err
		}
		for cur.Next() {
			value, err := cur.Record().Value()
			if err != nil {
				return err
			}
			fmt.Printf("%d\t%s\n", cur.ID(), value)
		}
		return cur.Err()
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Rewrite every dirty ring file immediately",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.FlushAll(0)
	},
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/yoockh/yoointerview/config"
)

var ensureIndexesCmd = &cobra.Command{
	Use:   "ensure-indexes",
	Short: "Create the MongoDB indexes and Postgres tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := config.LoadSettings()

		if err := config.InitMongo(); err != nil {
			return err
		}
		defer config.MongoClient.Disconnect(cmd.Context())
		if err := config.EnsureMongoIndexes(s.MongoDB); err != nil {
			return err
		}
		cmd.Printf("mongo indexes ensured on %s\n", s.MongoDB)

		if err := config.InitPostgres(); err != nil {
			return err
		}
		if err := config.MigratePostgres(); err != nil {
			return err
		}
		cmd.Println("postgres tables migrated")
		return nil
	},
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarlsen/tesla2mqtt/config"
	"github.com/mkarlsen/tesla2mqtt/core/topics"
	"github.com/mkarlsen/tesla2mqtt/infra/mqtt"
)

var sendCmd = &cobra.Command{
	Use:   "send <command> <value>",
	Short: "Publish a command message on the bridge's command topic",
	Long: `Publishes <value> on <base_topic>/<command>/set, exactly as an external
subscriber would, e.g.: tesla2mqtt send charge_limit 80`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-send-%d", mqttCfg.ClientID, time.Now().UnixNano())
	mqttCfg.LWTTopic = ""
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	mapper := topics.New(topics.Config{BaseTopic: cfg.Bridge.BaseTopic})
	topic := mapper.CommandTopic(args[0])
	if err := client.Publish(topic, []byte(args[1]), false); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	fmt.Printf("published %q to %s\n", args[1], topic)
	return nil
}

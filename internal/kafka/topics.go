package kafka

import (
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// EnsureTopicsExist creates the settlement topics if they don't already
// exist. Called once at startup; missing topics are not fatal because the
// broker may auto-create them.
func EnsureTopicsExist(brokers []string, topics []string) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		err = controllerConn.CreateTopics(topicConfigs...)
		if err != nil {
			if err.Error() == "kafka server: topic already exists" {
				log.Printf("Topic %s already exists", topic)
				continue
			}
			log.Printf("Error creating topic %s: %v", topic, err)
			// Keep going; the remaining topics may still succeed.
		} else {
			log.Printf("Created topic: %s", topic)
		}
	}

	// Give the controller a moment to propagate the new topics.
	time.Sleep(1 * time.Second)
	return nil
}

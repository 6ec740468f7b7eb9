package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing key, по которому DLQ привязана к DLX.
const imprintDLQRoutingKey = "dlq"

// topologyChannel - минимальный срез *amqp.Channel, нужный для объявления
// топологии очередей. Выделен в интерфейс, чтобы объявление можно было
// проверить без живого брокера.
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// imprintDLXName возвращает имя dead-letter exchange для очереди задач.
func imprintDLXName(queueName string) string {
	return queueName + "_dlx"
}

// imprintDLQName возвращает имя dead-letter очереди для очереди задач.
func imprintDLQName(queueName string) string {
	return queueName + "_dlq"
}

// declareImprintTopology объявляет DLX, DLQ и основную очередь задач
// импринтов. Единственная точка объявления: и издатель, и консьюмер
// проходят через нее, потому что повторное объявление очереди с другими
// аргументами брокер отклоняет с PRECONDITION_FAILED, и вторым
// подключившимся процессом было бы невозможно пользоваться.
func declareImprintTopology(ch topologyChannel, queueName string) error {
	dlx := imprintDLXName(queueName)
	dlq := imprintDLQName(queueName)

	err := ch.ExchangeDeclare(
		dlx,      // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLX '%s': %w", dlx, err)
	}

	_, err = ch.QueueDeclare(
		dlq,   // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ '%s': %w", dlq, err)
	}

	if err := ch.QueueBind(dlq, imprintDLQRoutingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ '%s' to DLX '%s': %w", dlq, dlx, err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": imprintDLQRoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}
	return nil
}

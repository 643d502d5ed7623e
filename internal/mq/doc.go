// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go - соединение с reconnect и graceful shutdown
//   - topology.go   - объявление exchanges, queues, bindings
//   - publisher.go  - публикация сообщений
//   - consumer.go   - потребление сообщений
//
// Типы сообщений:
//   - plan.pending  - запуск ожидает выполнения (потребитель: worker)
//   - plan.finished - запуск завершён (для внешних подписчиков)
//
// RabbitMQ необязателен: без него worker забирает запуски polling'ом.
package mq

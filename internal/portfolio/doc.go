// Package portfolio хранит симулированные портфели в памяти.
//
// Включает:
//   - universe.go: вселенная активов (сектора, идентификаторы BBID<n>, цены)
//   - store.go:    рабочее и исходное состояние портфелей, блокировки по portfolio_id
//   - rebalance.go: изменение весов секторов (adjust, move, batch)
//   - query.go:    чтение состава, топ позиций, поиск секторов и цен
//
// Каждый портфель защищён своим RWMutex: изменения одного портфеля
// выполняются строго по одному, чтения идут параллельно.
package portfolio

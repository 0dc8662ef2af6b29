// Package sequencer поддерживает плотную нумерацию ожидающих записей очереди.
//
// Для каждой очереди позиции записей в статусе WAITING всегда образуют
// последовательность 1..N без пропусков и повторов. Все изменения (вступление,
// обслуживание, пропуск, выход) выполняются в одной транзакции, которая
// начинается с блокировки строки очереди (SELECT ... FOR UPDATE). Поэтому
// операции над одной очередью выполняются строго последовательно, а каждая
// следующая видит результат предыдущей после её коммита. Частично применённое
// уплотнение никогда не становится видимым: любая ошибка откатывает транзакцию.
//
// Внутри транзакции нельзя ходить в сеть: письма, события и подсказки
// отправляются вызывающим кодом уже после коммита.
package sequencer

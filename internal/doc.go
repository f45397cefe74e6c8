// Package internal 實作 Rejump 的即時中繼伺服器。
//
// 中繼是一組客戶端的會合點：同一個命名房間裡的客戶端透過它交換
// 暫態更新（位置、分數、連擊、大廳準備狀態、開始遊戲信號），
// 彼此之間不直接通信。訊息不持久化、不保證送達，行程重啟後
// 所有狀態歸零。
//
// # 架構
//
// 系統採用分層設計，各層職責邊界明確：
//   - Hub 層：WebSocket 升級與讀寫泵（websocket.go）
//   - Relay 層：房間註冊表、訊息分派與廣播（relay.go）
//   - Monitor 層：兩階段連接健康掃描（health.go）
//   - Handler 層：狀態頁與統計端點（handler.go）
//
// 所有註冊表變動由 Relay 的互斥鎖串行化，處理器本體不做阻塞呼叫，
// 等效於單執行緒事件迴圈，check-then-act 序列（成員空了才刪房間）
// 因此不會被交錯的變動打斷。
//
// # 協定
//
// 每個訊框是帶 `type` 欄位的 JSON 物件。入站類型：join、leave、
// sync、heartbeat 與五種 lobby_* 轉發；出站類型：player_joined、
// player_left、existing_players、pong。遊戲內容欄位對中繼不透明。
//
// # 連接健康
//
// 應用層 heartbeat 與傳輸層 Pong 都會重置連接的活性狀態。監視器
// 每 30 秒掃描一次：超過 45 秒無活性信號直接剔除，其餘發送探測，
// 5 秒寬限期內未確認者剔除。剔除走與顯式斷線相同的 leave 路徑。
package internal
